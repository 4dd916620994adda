package antispam

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DefaultSettings is applied to newly registered channels.
const DefaultSettings = "5 200 1 2 2"

// ErrBadSettings is returned when a settings string does not follow the grammar.
var ErrBadSettings = errors.New("invalid anti-spam settings")

// Settings tunes the flood penalties for one channel.
// Protocol form: "<penaltyLimit> <longMsgLength> <normalMsgPenalty> <longMsgPenalty> <doubleMsgPenalty>".
type Settings struct {
	PenaltyLimit     int
	LongMsgLength    int
	NormalMsgPenalty float64
	LongMsgPenalty   float64
	DoubleMsgPenalty float64
}

// ParseSettings reads the protocol form.
func ParseSettings(s string) (Settings, error) {
	fields := strings.Fields(s)
	if len(fields) != 5 {
		return Settings{}, fmt.Errorf("%w: expected 5 fields, got %d", ErrBadSettings, len(fields))
	}

	var (
		out Settings
		err error
	)
	if out.PenaltyLimit, err = strconv.Atoi(fields[0]); err != nil {
		return Settings{}, fmt.Errorf("%w: penalty limit: %v", ErrBadSettings, err)
	}
	if out.LongMsgLength, err = strconv.Atoi(fields[1]); err != nil {
		return Settings{}, fmt.Errorf("%w: long message length: %v", ErrBadSettings, err)
	}
	floats := []*float64{&out.NormalMsgPenalty, &out.LongMsgPenalty, &out.DoubleMsgPenalty}
	for i, dst := range floats {
		if *dst, err = strconv.ParseFloat(fields[2+i], 64); err != nil {
			return Settings{}, fmt.Errorf("%w: field %d: %v", ErrBadSettings, 3+i, err)
		}
	}
	if out.PenaltyLimit < 0 || out.LongMsgLength < 0 {
		return Settings{}, fmt.Errorf("%w: negative limit", ErrBadSettings)
	}
	return out, nil
}

// String formats the settings back into the protocol form.
func (s Settings) String() string {
	return strings.Join([]string{
		strconv.Itoa(s.PenaltyLimit),
		strconv.Itoa(s.LongMsgLength),
		strconv.FormatFloat(s.NormalMsgPenalty, 'f', -1, 64),
		strconv.FormatFloat(s.LongMsgPenalty, 'f', -1, 64),
		strconv.FormatFloat(s.DoubleMsgPenalty, 'f', -1, 64),
	}, " ")
}
