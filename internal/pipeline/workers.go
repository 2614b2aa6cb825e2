package pipeline

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/frame"
	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/processor"
	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/queue"
	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/retry"
	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/stats"
)

// DefaultFrameInterval paces sources that report no frame rate.
const DefaultFrameInterval = time.Second / 30

type pushResult int

const (
	pushed pushResult = iota
	pushDropped
	pushClosed
)

// push enqueues item under policy. A push refused only because the queue
// was shut down is reported separately so it is not counted as a drop.
func push[T any](q *queue.BoundedQueue[T], item T, policy FlowPolicy) pushResult {
	if policy == FlowBackpressure {
		if q.Push(item) {
			return pushed
		}
		return pushClosed
	}
	if q.TryPush(item) {
		return pushed
	}
	if q.IsShutdown() {
		return pushClosed
	}
	return pushDropped
}

// decodeLoop pulls frames from the source at its native rate. At end of
// stream it rewinds and keeps playing. Errors, and end of stream with no
// frame since the last rewind, are retried with backoff.
func (p *Pipeline) decodeLoop(src Source, st *stats.PipelineStats) {
	defer p.wg.Done()

	interval := src.FrameInterval()
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	bo := retry.NewBackoff(retry.SeedFor(p.path, p.seed), p.backoff)
	policy := p.cfg.Policy

	var (
		id       frame.ID
		rewind   bool
		sawFrame bool
		deadline = time.Now()
	)

	for !p.stopping() {
		if rewind {
			if err := src.Seek(0); err != nil {
				if !p.retryDecode(bo, st, "seek", err) {
					return
				}
				continue
			}
			rewind = false
			id = 0
		}

		img, err := src.NextFrame()
		if err == nil && img == nil {
			err = errNilFrame
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				rewind = true
				if sawFrame {
					sawFrame = false
					st.Loops.Add(1)
					p.logger.Debug("source_loop", "loops", st.Loops.Load())
					continue
				}
			}
			if !p.retryDecode(bo, st, "next_frame", err) {
				return
			}
			continue
		}
		sawFrame = true
		bo.Reset()

		raw := frame.RawFrame{ID: id, Timestamp: time.Now(), Image: img}
		id++
		// A frame refused by shutdown never entered the pipeline and is
		// not counted.
		res := push(p.decodeQ, raw, policy)
		if res == pushClosed {
			return
		}
		st.Decoded.Add(1)
		if res == pushDropped {
			st.RecordDecodeDrop()
		}
		st.DecodeFPS.Tick()

		// Advance the virtual deadline. A late frame is counted and the
		// deadline rebased so the loop never races to catch up.
		deadline = deadline.Add(interval)
		wait := time.Until(deadline)
		if wait < 0 {
			st.PacingMisses.Add(1)
			deadline = time.Now()
			continue
		}
		if !retry.Sleep(p.stop, wait) {
			return
		}
	}
}

// retryDecode counts a decode retry and waits out the backoff. It reports
// false if the pipeline stopped while waiting.
func (p *Pipeline) retryDecode(bo *retry.Backoff, st *stats.PipelineStats, op string, err error) bool {
	st.DecodeRetries.Add(1)
	p.logger.Debug("decode_retry",
		"op", op,
		"attempt", bo.Attempts()+1,
		"error", err,
	)
	return bo.Wait(p.stop)
}

// processLoop renders raw frames into grids.
func (p *Pipeline) processLoop(proc *processor.Processor, st *stats.PipelineStats) {
	defer p.wg.Done()
	policy := p.cfg.Policy

	for !p.stopping() {
		raw, ok := p.decodeQ.Pop()
		if !ok || p.stopping() {
			return
		}

		out := proc.Process(raw)
		if !out.Valid() {
			// Counted like a queue drop so stage-2 accounting still balances.
			st.Processed.Add(1)
			st.RecordProcessDrop()
			continue
		}
		res := push(p.renderQ, out, policy)
		if res == pushClosed {
			return
		}
		st.Processed.Add(1)
		if res == pushDropped {
			st.RecordProcessDrop()
		}
		st.ProcessFPS.Tick()
	}
}

// renderLoop draws processed frames and watches for the quit key.
func (p *Pipeline) renderLoop(st *stats.PipelineStats) {
	defer p.wg.Done()

	for !p.stopping() {
		pf, ok := p.renderQ.Pop()
		if !ok || p.stopping() {
			return
		}

		latency := time.Since(pf.Timestamp)
		st.Rendered.Add(1)
		st.RenderFPS.Tick()
		st.Latency.Record(latency)
		if p.onRender != nil {
			p.onRender(pf, latency)
		}

		p.display.Draw(pf.Grid, p.statusLine(st))

		if p.display.PollQuit() {
			p.logger.Info("quit_requested", "frame_id", uint64(pf.ID))
			p.shutdown()
			return
		}
	}
}

// statusLine is the telemetry line drawn under each frame.
func (p *Pipeline) statusLine(st *stats.PipelineStats) string {
	return fmt.Sprintf("%s | Q %d/%d %d/%d | q=quit",
		st.Format(),
		p.decodeQ.Len(), p.decodeQ.Cap(),
		p.renderQ.Len(), p.renderQ.Cap(),
	)
}
