package conductor

import (
	"time"

	"github.com/shaiso/vibeweaver/internal/domain"
)

// maxExtrapolationBeats — насколько часы могут уйти вперёд от последнего
// наблюдения, если шина замолчала.
const maxExtrapolationBeats = 4.0

// TransportPlaying — состояние транспорта, при котором позиция движется.
const TransportPlaying = "playing"

// Clock — позиция транспорта сессии в долях.
//
// Позиция берётся из событий шины (beat.tick, transport.*, marker.*)
// и между ними экстраполируется по темпу, пока транспорт играет.
type Clock struct {
	beat     float64
	at       time.Time
	tempoBPM float64
	playing  bool
}

// NewClock создаёт остановленные часы на нулевой доле.
func NewClock(tempoBPM float64) *Clock {
	if tempoBPM <= 0 {
		tempoBPM = domain.DefaultTempoBPM
	}
	return &Clock{tempoBPM: tempoBPM}
}

// Observe обновляет часы по событию шины.
func (c *Clock) Observe(b domain.Broadcast, now time.Time) {
	switch b.Kind {
	case domain.BroadcastBeatTick:
		c.beat = b.Beat
		c.at = now
		c.playing = true
		if b.TempoBPM > 0 {
			c.tempoBPM = b.TempoBPM
		}
	case domain.BroadcastTransportStateChanged:
		c.beat = b.PositionBeats
		c.at = now
		c.playing = b.State == TransportPlaying
	case domain.BroadcastMarkerReached:
		c.beat = b.Beat
		c.at = now
	}
}

// SetTempo задаёт темп экстраполяции. Неположительный темп игнорируется.
func (c *Clock) SetTempo(bpm float64) {
	if bpm > 0 {
		c.tempoBPM = bpm
	}
}

// Position возвращает текущую позицию в долях.
func (c *Clock) Position(now time.Time) float64 {
	if !c.playing || c.at.IsZero() {
		return c.beat
	}
	elapsed := now.Sub(c.at)
	if elapsed <= 0 {
		return c.beat
	}
	ahead := elapsed.Minutes() * c.tempoBPM
	return c.beat + min(ahead, maxExtrapolationBeats)
}

// Playing сообщает, движется ли транспорт.
func (c *Clock) Playing() bool {
	return c.playing
}
