package rxcal

import "time"

// Event kinds
const (
	EventSessionStart = "session_start"
	EventStage        = "stage"
	EventSample       = "sample"
	EventRetry        = "retry"
	EventSessionEnd   = "session_end"
)

// Event is one step of calibration progress.
type Event struct {
	Session string    `json:"session"`
	Kind    string    `json:"kind"`
	Channel string    `json:"channel"`
	Stage   string    `json:"stage,omitempty"`
	Field   string    `json:"field,omitempty"`
	Value   int       `json:"value"`
	RSSI    int       `json:"rssi,omitempty"`
	Target  int       `json:"target,omitempty"`
	Range   int       `json:"range,omitempty"`
	Status  string    `json:"status,omitempty"`
	Time    time.Time `json:"time"`
}

func (d *Device) emit(ch Channel, ev Event) {
	if d.observer == nil {
		return
	}
	ev.Session = d.session
	ev.Channel = ch.String()
	if ev.Stage == "" {
		ev.Stage = d.stage
	}
	ev.Time = time.Now()
	d.observer(ev)
}

func (d *Device) enterStage(ch Channel, stage string) {
	d.stage = stage
	d.emit(ch, Event{Kind: EventStage})
	d.log.Debug("Calibration stage", "channel", ch, "stage", stage)
}
