package inbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nao1215/encore/pkg/logging"
)

// DefaultPollInterval は既定のポーリング間隔。
const DefaultPollInterval = 5 * time.Second

// Poller はマウント中だけ一定間隔でStateを取り直す。
type Poller struct {
	state    *State
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller は新しいPollerを生成する。intervalが0以下なら既定値を使う。
func NewPoller(state *State, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{state: state, interval: interval}
}

// Mount はすぐに1回取得し、以降intervalごとに取得する。既にマウント中なら何もしない。
// 返り値はStateのマウント世代。
func (p *Poller) Mount(ctx context.Context) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return p.state.generation.Load()
	}
	gen := p.state.Mount()

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(ctx, p.done)
	return gen
}

// Unmount はポーリングを止め、取得中の結果が後から適用されないようにする。
func (p *Poller) Unmount() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	p.state.Unmount()
	cancel()
	<-done
}

// Mounted はマウント中かどうかを返す。
func (p *Poller) Mounted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll は1回取得する。失敗はログに残すだけで、次の周期が再試行になる。
func (p *Poller) poll(ctx context.Context) {
	err := p.state.Resync(ctx)
	switch {
	case err == nil, ctx.Err() != nil:
	case errors.Is(err, ErrStaleSnapshot):
		logging.Debug().Msg("ポーリング結果が古いため破棄しました")
	default:
		logging.Warn().Err(err).Msg("通知のポーリングに失敗しました")
	}
}
