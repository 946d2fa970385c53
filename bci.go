package bci

import (
	"fmt"
	"strings"
	"time"
)

// DataType identifies what an Event represents.
type DataType int

// Supported data types. Values are stable and used in pipeline files.
const (
	// EEG is microvolt data organized by channel.
	EEG DataType = iota
	// FFTRaw is the unsmoothed spectrum of one channel. Extra is the
	// channel index.
	FFTRaw
	// FFTSmoothed is the smoothed spectrum of one channel. Extra is the
	// channel index.
	FFTSmoothed
	AlphaAbsolute
	BetaAbsolute
	GammaAbsolute
	DeltaAbsolute
	ThetaAbsolute
	AlphaRelative
	BetaRelative
	GammaRelative
	DeltaRelative
	ThetaRelative
	// ContactQuality reports per channel contact: 4 = no contact,
	// 2 = poor, 1 = good.
	ContactQuality
)

var dataTypeNames = [...]string{
	EEG:            "EEG",
	FFTRaw:         "FFT_RAW",
	FFTSmoothed:    "FFT_SMOOTHED",
	AlphaAbsolute:  "ALPHA_ABSOLUTE",
	BetaAbsolute:   "BETA_ABSOLUTE",
	GammaAbsolute:  "GAMMA_ABSOLUTE",
	DeltaAbsolute:  "DELTA_ABSOLUTE",
	ThetaAbsolute:  "THETA_ABSOLUTE",
	AlphaRelative:  "ALPHA_RELATIVE",
	BetaRelative:   "BETA_RELATIVE",
	GammaRelative:  "GAMMA_RELATIVE",
	DeltaRelative:  "DELTA_RELATIVE",
	ThetaRelative:  "THETA_RELATIVE",
	ContactQuality: "CONTACT_QUALITY",
}

// String returns the name of data type.
func (t DataType) String() string {
	if t < 0 || int(t) >= len(dataTypeNames) {
		return fmt.Sprintf("DataType(%d)", int(t))
	}
	return dataTypeNames[t]
}

// ParseDataType returns the data type with provided name. Names are
// case-insensitive.
func ParseDataType(name string) (DataType, error) {
	for i, n := range dataTypeNames {
		if strings.EqualFold(n, name) {
			return DataType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown data type: %q", name)
}

// Event is a timestamped sample carried through the pipeline.
type Event struct {
	Timestamp time.Time
	Type      DataType
	// Data semantics depends on Type. For EEG it has a value per channel.
	Data []float64
	// Extra carries values that can't be expressed by Data.
	Extra interface{}
}

// NewEvent creates an event without extra data.
func NewEvent(ts time.Time, t DataType, data []float64) Event {
	return Event{
		Timestamp: ts,
		Type:      t,
		Data:      data,
	}
}

func (e Event) String() string {
	data := make([]string, len(e.Data))
	for i := range e.Data {
		data[i] = fmt.Sprint(e.Data[i])
	}
	return fmt.Sprintf("Event(%s/%v/%s/%v)", e.Timestamp.Format("15:04:05.000"), e.Type, strings.Join(data, " "), e.Extra)
}

// TrainedEvent indicates that a previously trained pattern was detected.
type TrainedEvent struct {
	ID   int
	Time time.Time
}

// NewTrainedEvent returns trained event for id that happened now.
func NewTrainedEvent(id int) TrainedEvent {
	return TrainedEvent{
		ID:   id,
		Time: time.Now(),
	}
}
