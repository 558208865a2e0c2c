package roomclient

// dispatcher routes decoded frames to registered callbacks. Callbacks run
// on the read loop goroutine after local state has been updated, so a
// handler always observes state that already includes the event it is
// being told about.
type dispatcher struct {
	onMessage      func(Message)
	onUpdate       func(Message)
	onPresence     func(Participant)
	onParticipants func([]Participant)
	onError        func(error)
}

func (d *dispatcher) fireMessage(m Message) {
	if d.onMessage != nil {
		d.onMessage(m)
	}
}

func (d *dispatcher) fireUpdate(m Message) {
	if d.onUpdate != nil {
		d.onUpdate(m)
	}
}

func (d *dispatcher) firePresence(p Participant) {
	if d.onPresence != nil {
		d.onPresence(p)
	}
}

func (d *dispatcher) fireParticipants(ps []Participant) {
	if d.onParticipants != nil {
		d.onParticipants(ps)
	}
}

func (d *dispatcher) fireError(err error) {
	if d.onError != nil && err != nil {
		d.onError(err)
	}
}
