package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"tunnel-keeper/internal/config"
	"tunnel-keeper/internal/models"
	"tunnel-keeper/internal/utils"

	"github.com/stretchr/testify/require"
)

// memStore 内存中的设置存储
type memStore struct {
	mu       sync.Mutex
	settings []models.TunnelSetting
	saveErr  error
	saves    int
}

func (m *memStore) Load() ([]models.TunnelSetting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.TunnelSetting{}, m.settings...), nil
}

func (m *memStore) Save(settings []models.TunnelSetting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.settings = append([]models.TunnelSetting{}, settings...)
	return nil
}

// fakeProber 以端口表模拟监听进程
type fakeProber struct {
	mu        sync.Mutex
	listeners map[int][]int
	alive     map[int]bool
	killed    []int
	probes    int
	gate      chan struct{} // 非空时探测阻塞到 gate 关闭
	entered   chan struct{}
}

func newFakeProber() *fakeProber {
	return &fakeProber{
		listeners: make(map[int][]int),
		alive:     make(map[int]bool),
		entered:   make(chan struct{}, 16),
	}
}

func (p *fakeProber) listen(port, pid int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners[port] = append(p.listeners[port], pid)
	p.alive[pid] = true
}

func (p *fakeProber) setAlive(pid int, alive bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alive[pid] = alive
}

func (p *fakeProber) wait() {
	p.mu.Lock()
	p.probes++
	gate := p.gate
	p.mu.Unlock()
	select {
	case p.entered <- struct{}{}:
	default:
	}
	if gate != nil {
		<-gate
	}
}

func (p *fakeProber) FindListener(ctx context.Context, proto utils.NetProtocol, addr string, port int, image string) []int {
	p.wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int{}, p.listeners[port]...)
}

func (p *fakeProber) IsAlive(pid int) bool {
	p.wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	return pid > 0 && p.alive[pid]
}

func (p *fakeProber) Kill(pid int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killed = append(p.killed, pid)
	p.alive[pid] = false
	for port, pids := range p.listeners {
		var rest []int
		for _, x := range pids {
			if x != pid {
				rest = append(rest, x)
			}
		}
		p.listeners[port] = rest
	}
	return nil
}

func (p *fakeProber) killedPIDs() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int{}, p.killed...)
}

func (p *fakeProber) probeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.probes
}

// fakeLauncher 记录启动请求并保存回调，由测试决定结果
type fakeLauncher struct {
	mu             sync.Mutex
	bastionCalls   int
	sshCalls       int
	bastionErr     error
	sshErr         error
	bastionFailure func(error)
	sshExit        func()
	lastLogin      string
}

func (l *fakeLauncher) LaunchBastion(ctx context.Context, t models.Tunnel, login string, onFailure func(error)) (*ProcessInstance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bastionCalls++
	l.lastLogin = login
	l.bastionFailure = onFailure
	return nil, l.bastionErr
}

func (l *fakeLauncher) LaunchSSH(ctx context.Context, t models.Tunnel, login string, onExit func()) (*ProcessInstance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sshCalls++
	l.lastLogin = login
	l.sshExit = onExit
	return nil, l.sshErr
}

func (l *fakeLauncher) calls() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bastionCalls, l.sshCalls
}

func (l *fakeLauncher) failBastion(err error) {
	l.mu.Lock()
	fn := l.bastionFailure
	l.mu.Unlock()
	fn(err)
}

func (l *fakeLauncher) exitSSH() {
	l.mu.Lock()
	fn := l.sshExit
	l.mu.Unlock()
	fn()
}

type recordedMessage struct {
	level  models.MessageLevel
	index  int
	text   string
	action string
}

// recordingNotifier 记录所有通知
type recordingNotifier struct {
	mu          sync.Mutex
	states      []models.TunnelState
	messages    []recordedMessage
	lists       int
	unsupported int
}

func (n *recordingNotifier) TunnelChanged(index int, t models.Tunnel) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.states = append(n.states, t.State)
}

func (n *recordingNotifier) AllTunnels(tunnels []models.Tunnel) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lists++
}

func (n *recordingNotifier) Unsupported() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.unsupported++
}

func (n *recordingNotifier) Message(level models.MessageLevel, index int, text string, action string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, recordedMessage{level: level, index: index, text: text, action: action})
}

func (n *recordingNotifier) stateHistory() []models.TunnelState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.TunnelState{}, n.states...)
}

func (n *recordingNotifier) texts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, m := range n.messages {
		out = append(out, m.text)
	}
	return out
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.states = nil
	n.messages = nil
}

type engineFixture struct {
	reg      *Registry
	store    *memStore
	prober   *fakeProber
	launcher *fakeLauncher
	notifier *recordingNotifier
	engine   *Engine
	cfg      config.TunnelConfig
}

func newEngineFixture(t *testing.T, settings ...models.TunnelSetting) *engineFixture {
	t.Helper()
	f := &engineFixture{
		store:    &memStore{settings: settings},
		prober:   newFakeProber(),
		launcher: &fakeLauncher{},
		notifier: &recordingNotifier{},
		cfg: config.TunnelConfig{
			TickInterval:   10 * time.Millisecond,
			BastionTimeout: time.Second,
			AutoReconnect:  config.ReconnectConfig{Enabled: false, MaxTrials: 3},
			Image:          config.ImageConfig{Bastion: "Python", SSH: "ssh"},
		},
	}
	f.reg = NewRegistry(f.store)
	require.NoError(t, f.reg.Load())
	f.engine = NewEngine(f.reg, f.prober, f.launcher, f.notifier,
		func() (string, bool) { return "REDMOND.alice", true },
		func() config.TunnelConfig { return f.cfg })
	return f
}

// tick 执行一次 tick 并等待所有处理完成
func (f *engineFixture) tick() {
	f.engine.Tick(context.Background())
	f.engine.Wait()
}

func (f *engineFixture) tunnel(t *testing.T, index int) models.Tunnel {
	t.Helper()
	tun, err := f.reg.Get(index)
	require.NoError(t, err)
	return tun
}

// force 直接设置隧道运行期字段
func (f *engineFixture) force(index int, state models.TunnelState, bastionPID, sshPID, retry int) {
	f.reg.mu.Lock()
	defer f.reg.mu.Unlock()
	ti := f.reg.tunnels[index]
	ti.State = state
	ti.BastionProcID = bastionPID
	ti.SSHProcID = sshPID
	ti.RetryCount = retry
}
