package mediaclient

import (
	"strconv"

	psdp "github.com/pion/sdp/v3"
)

// buildSDPAnswer constructs a minimal single-audio-stream SDP answer for a
// session LocalTransport just allocated, offering exactly the one codec it
// negotiated. Mirrors the shape the teacher's own SDP parsing (sdpfilter.go,
// originator.go's extractRemoteMedia) expects on the other end: one
// m=audio line, one rtpmap, RTP/AVP.
func buildSDPAnswer(addr string, port int, codec rtpCodec) []byte {
	origin := psdp.Origin{
		Username:       "-",
		SessionID:      uint64(port),
		SessionVersion: uint64(port),
		NetworkType:    "IN",
		AddressType:    "IP4",
		UnicastAddress: addr,
	}

	sd := &psdp.SessionDescription{
		Version: 0,
		Origin:  origin,
		SessionName: "switchboard",
		ConnectionInformation: &psdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &psdp.Address{Address: addr},
		},
		TimeDescriptions: []psdp.TimeDescription{
			{Timing: psdp.Timing{StartTime: 0, StopTime: 0}},
		},
		MediaDescriptions: []*psdp.MediaDescription{
			{
				MediaName: psdp.MediaName{
					Media:   "audio",
					Port:    psdp.RangedPort{Value: port},
					Protos:  []string{"RTP", "AVP"},
					Formats: []string{strconv.Itoa(int(codec.pt))},
				},
				Attributes: []psdp.Attribute{
					{Key: "rtpmap", Value: strconv.Itoa(int(codec.pt)) + " " + codec.name + "/8000"},
					{Key: "sendrecv"},
				},
			},
		},
	}

	out, err := sd.Marshal()
	if err != nil {
		// SessionDescription built entirely from in-process values above;
		// a marshal failure here means a programming error, not bad input.
		panic("mediaclient: marshal built SDP answer: " + err.Error())
	}
	return out
}

