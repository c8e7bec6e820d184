package mpegts

import "fmt"

// StreamType is the PMT stream_type code of an elementary stream.
type StreamType uint8

const (
	StreamTypeMPEG1Video     StreamType = 0x01
	StreamTypeMPEG2Video     StreamType = 0x02
	StreamTypeMPEG1Audio     StreamType = 0x03
	StreamTypeMPEG2Audio     StreamType = 0x04
	StreamTypePrivateSection StreamType = 0x05
	StreamTypePrivateData    StreamType = 0x06
	StreamTypeDSMCC          StreamType = 0x0D
	StreamTypeAAC            StreamType = 0x0F
	StreamTypeMPEG4Video     StreamType = 0x10
	StreamTypeAACLATM        StreamType = 0x11
	StreamTypeMetadata       StreamType = 0x15
	StreamTypeH264           StreamType = 0x1B
	StreamTypeH265           StreamType = 0x24
	StreamTypeAC3            StreamType = 0x81
	StreamTypeSCTE35         StreamType = 0x86
	StreamTypeEAC3           StreamType = 0x87
)

// StreamKind is the broad media class of a stream type.
type StreamKind int

const (
	KindUnknown StreamKind = iota
	KindVideo
	KindAudio
	KindData
)

func (k StreamKind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindData:
		return "data"
	}
	return "unknown"
}

var streamTypeInfo = map[StreamType]struct {
	label string
	kind  StreamKind
}{
	StreamTypeMPEG1Video:     {"MPEG-1 Video", KindVideo},
	StreamTypeMPEG2Video:     {"MPEG-2 Video", KindVideo},
	StreamTypeMPEG1Audio:     {"MPEG-1 Audio", KindAudio},
	StreamTypeMPEG2Audio:     {"MPEG-2 Audio", KindAudio},
	StreamTypePrivateSection: {"Private Sections", KindData},
	StreamTypePrivateData:    {"PES Private Data", KindData},
	StreamTypeDSMCC:          {"DSM-CC", KindData},
	StreamTypeAAC:            {"AAC (ADTS)", KindAudio},
	StreamTypeMPEG4Video:     {"MPEG-4 Video", KindVideo},
	StreamTypeAACLATM:        {"AAC (LATM)", KindAudio},
	StreamTypeMetadata:       {"Metadata", KindData},
	StreamTypeH264:           {"H.264", KindVideo},
	StreamTypeH265:           {"H.265", KindVideo},
	StreamTypeAC3:            {"AC-3", KindAudio},
	StreamTypeSCTE35:         {"SCTE-35", KindData},
	StreamTypeEAC3:           {"E-AC-3", KindAudio},
}

// String returns a human-readable label, e.g. "H.264".
func (t StreamType) String() string {
	if info, ok := streamTypeInfo[t]; ok {
		return info.label
	}
	return fmt.Sprintf("Unknown (0x%02X)", uint8(t))
}

// Kind classifies the stream type as video, audio or data.
func (t StreamType) Kind() StreamKind {
	return streamTypeInfo[t].kind
}
