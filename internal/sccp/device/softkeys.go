package device

import "github.com/rbeving/sccpd/internal/sccp/wire"

// softKeyTemplate is the stock label/event template pushed to every
// device. Order matters: set definitions index into it by event value.
var softKeyTemplate = []struct {
	label string
	event uint32
}{
	{"Redial", wire.SoftKeyRedial},
	{"NewCall", wire.SoftKeyNewCall},
	{"Hold", wire.SoftKeyHold},
	{"Trnsfer", wire.SoftKeyTransfer},
	{"CFwdAll", wire.SoftKeyCFwdAll},
	{"CFwdBusy", wire.SoftKeyCFwdBusy},
	{"CFwdNoAns", wire.SoftKeyCFwdNoAnswer},
	{"<<", wire.SoftKeyBackspace},
	{"EndCall", wire.SoftKeyEndCall},
	{"Resume", wire.SoftKeyResume},
	{"Answer", wire.SoftKeyAnswer},
	{"Info", wire.SoftKeyInfo},
	{"Confrn", wire.SoftKeyConference},
	{"Park", wire.SoftKeyPark},
	{"Join", wire.SoftKeyJoin},
	{"MeetMe", wire.SoftKeyMeetMe},
	{"PickUp", wire.SoftKeyPickup},
	{"GPickUp", wire.SoftKeyGroupPickup},
	{"DND", wire.SoftKeyDND},
}

// softKeySets lists, per soft key set index, the events shown in that
// call state.
var softKeySets = [][]uint32{
	wire.KeySetOnHook:                {wire.SoftKeyRedial, wire.SoftKeyNewCall, wire.SoftKeyCFwdAll, wire.SoftKeyDND},
	wire.KeySetConnected:             {wire.SoftKeyHold, wire.SoftKeyEndCall, wire.SoftKeyTransfer, wire.SoftKeyPark, wire.SoftKeyConference},
	wire.KeySetOnHold:                {wire.SoftKeyResume, wire.SoftKeyNewCall, wire.SoftKeyEndCall},
	wire.KeySetRingIn:                {wire.SoftKeyAnswer, wire.SoftKeyEndCall},
	wire.KeySetOffHook:               {wire.SoftKeyRedial, wire.SoftKeyEndCall, wire.SoftKeyCFwdAll},
	wire.KeySetConnectedWithTransfer: {wire.SoftKeyHold, wire.SoftKeyEndCall, wire.SoftKeyTransfer},
	wire.KeySetDigitsAfterFirst:      {wire.SoftKeyBackspace, wire.SoftKeyEndCall},
	wire.KeySetConnectedWithConf:     {wire.SoftKeyHold, wire.SoftKeyEndCall, wire.SoftKeyConference},
	wire.KeySetRingOut:               {wire.SoftKeyEndCall, wire.SoftKeyTransfer},
	wire.KeySetOffHookWithFeatures:   {wire.SoftKeyRedial, wire.SoftKeyEndCall},
	wire.KeySetInUseHint:             {wire.SoftKeyNewCall},
}

func softKeyTemplateRes() *wire.SoftKeyTemplateResBody {
	res := &wire.SoftKeyTemplateResBody{
		SoftKeyCount:      uint32(len(softKeyTemplate)),
		TotalSoftKeyCount: uint32(len(softKeyTemplate)),
	}
	for i, k := range softKeyTemplate {
		wire.PutCString(res.Definitions[i].Label[:], k.label)
		res.Definitions[i].Event = k.event
	}
	return res
}

func softKeySetRes() *wire.SoftKeySetResBody {
	res := &wire.SoftKeySetResBody{
		SetCount:      uint32(len(softKeySets)),
		TotalSetCount: uint32(len(softKeySets)),
	}
	for set, keys := range softKeySets {
		for pos, event := range keys {
			res.Sets[set].KeyTemplateIndex[pos] = uint8(event)
			res.Sets[set].KeyInfoIndex[pos] = uint16(event)
		}
	}
	return res
}
