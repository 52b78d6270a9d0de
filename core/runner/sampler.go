package runner

import (
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// sampler polls the resident set size of a process and keeps the maximum.
type sampler struct {
	stop chan struct{}
	done chan struct{}
	peak uint64
}

func startSampler(pid int32, interval time.Duration, logger *zap.Logger) *sampler {
	s := &sampler{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	if interval <= 0 {
		close(s.done)
		return s
	}

	go s.loop(pid, interval, logger)
	return s
}

func (s *sampler) loop(pid int32, interval time.Duration, logger *zap.Logger) {
	defer close(s.done)

	proc, err := process.NewProcess(pid)
	if err != nil {
		logger.Debug("Not sampling trainer", zap.Error(err))
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.sample(proc)
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sample(proc)
		}
	}
}

func (s *sampler) sample(proc *process.Process) {
	mem, err := proc.MemoryInfo()
	if err != nil {
		// The process exited between ticks.
		return
	}
	if mem.RSS > s.peak {
		s.peak = mem.RSS
	}
}

// Stop ends sampling and returns the largest RSS seen in bytes.
func (s *sampler) Stop() uint64 {
	close(s.stop)
	<-s.done
	return s.peak
}
