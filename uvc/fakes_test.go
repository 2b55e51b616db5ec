package uvc

import (
	"errors"
	"strconv"
)

// callLog records hardware calls in order
type callLog struct {
	calls []string
}

func (l *callLog) add(s string) {
	l.calls = append(l.calls, s)
}

func (l *callLog) reset() {
	l.calls = nil
}

type fakeDMA struct {
	log       *callLog
	committed [][]byte
	discarded int
	failNext  bool
	failReset bool
	wrapUps   []uint8
}

func (d *fakeDMA) Commit(buf *CaptureBuffer, length int) error {
	if d.failNext {
		d.failNext = false
		return errors.New("commit rejected")
	}
	framed := make([]byte, length)
	copy(framed, buf.Data[:length])
	d.committed = append(d.committed, framed)
	return nil
}

func (d *fakeDMA) Discard(buf *CaptureBuffer) error {
	d.discarded++
	return nil
}

func (d *fakeDMA) Reset() error {
	d.log.add("dma_reset")
	if d.failReset {
		return errors.New("reset failed")
	}
	return nil
}

func (d *fakeDMA) SetXfer(count uint32) error {
	d.log.add("dma_xfer")
	return nil
}

func (d *fakeDMA) WrapUp(socket uint8) error {
	d.wrapUps = append(d.wrapUps, socket)
	return nil
}

type fakeGPIF struct {
	log      *callLog
	switches []uint8
	paused   bool
}

func (g *fakeGPIF) Switch(socket uint8) error {
	g.switches = append(g.switches, socket)
	g.log.add("gpif_switch" + strconv.Itoa(int(socket)))
	return nil
}

func (g *fakeGPIF) Pause(paused bool) error {
	g.paused = paused
	if paused {
		g.log.add("gpif_pause")
	} else {
		g.log.add("gpif_resume")
	}
	return nil
}

type fakeUSB struct {
	log   *callLog
	super bool
	lpm   bool
	nak   bool
}

func (u *fakeUSB) SetNak(nak bool) error {
	u.nak = nak
	if nak {
		u.log.add("nak")
	} else {
		u.log.add("unnak")
	}
	return nil
}

func (u *fakeUSB) Flush() error {
	u.log.add("flush")
	return nil
}

func (u *fakeUSB) ClearStall() error {
	u.log.add("clear_stall")
	return nil
}

func (u *fakeUSB) SetLPM(enabled bool) error {
	u.lpm = enabled
	return nil
}

func (u *fakeUSB) SuperSpeed() bool {
	return u.super
}

type fakeMIPI struct {
	log *callLog
}

func (m *fakeMIPI) Wakeup() error {
	m.log.add("mipi_wakeup")
	return nil
}

func (m *fakeMIPI) Sleep() error {
	m.log.add("mipi_sleep")
	return nil
}

type fakePower struct {
	log *callLog
}

func (p *fakePower) EnterSuspend() error {
	p.log.add("suspend")
	return nil
}

type fakeSensor struct {
	log *callLog
	on  bool
}

func (s *fakeSensor) PowerUp() error {
	s.on = true
	s.log.add("sensor_up")
	return nil
}

func (s *fakeSensor) PowerDown() error {
	s.on = false
	s.log.add("sensor_down")
	return nil
}

type fakeFocus struct {
	lines  []int
	frames []int
	starts int
	stops  int
}

func (f *fakeFocus) FocusSetLine(index int, payload []byte) {
	f.lines = append(f.lines, index)
}

func (f *fakeFocus) FocusEndFrame(buffers int) {
	f.frames = append(f.frames, buffers)
}

func (f *fakeFocus) FocusStart() {
	f.starts++
}

func (f *fakeFocus) FocusStop() {
	f.stops++
}

type fakeRig struct {
	log    *callLog
	dma    *fakeDMA
	gpif   *fakeGPIF
	usb    *fakeUSB
	sensor *fakeSensor
	focus  *fakeFocus
	hw     Hardware
}

func newFakeRig() *fakeRig {
	log := &callLog{}
	r := &fakeRig{
		log:    log,
		dma:    &fakeDMA{log: log},
		gpif:   &fakeGPIF{log: log},
		usb:    &fakeUSB{log: log, super: true},
		sensor: &fakeSensor{log: log},
		focus:  &fakeFocus{},
	}
	r.hw = Hardware{
		DMA:    r.dma,
		GPIF:   r.gpif,
		USB:    r.usb,
		MIPI:   &fakeMIPI{log: log},
		Power:  &fakePower{log: log},
		Sensor: r.sensor,
	}
	return r
}
