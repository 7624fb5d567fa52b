package services

import (
	"fmt"
	"strconv"
	"sync"

	"tunnel-keeper/internal/logger"
	"tunnel-keeper/internal/models"

	"github.com/go-playground/validator/v10"
)

// DefaultPort 建议端口的起点
const DefaultPort = 22222

// SettingsStore persists the ordered tunnel settings of one identity
type SettingsStore interface {
	Load() ([]models.TunnelSetting, error)
	Save(settings []models.TunnelSetting) error
}

/**
 * TunnelInstance 运行期隧道
 * @description
 * - 内嵌的 models.Tunnel 是对外可见的快照内容
 * - 进程句柄与在途标记只存在于内存
 */
type TunnelInstance struct {
	models.Tunnel
	bastion   *ProcessInstance // 最近一次启动的堡垒机脚本
	ssh       *ProcessInstance // 最近一次启动的 ssh
	launchSeq uint64           // 每次进入 bastion_opening/ssh_opening 递增，用于丢弃过期的异步回调
	inflight  bool             // 有未完成的探测
}

func newTunnelInstance(setting models.TunnelSetting, state models.TunnelState) *TunnelInstance {
	return &TunnelInstance{Tunnel: models.NewTunnel(setting, state)}
}

/**
 * Registry owns the ordered tunnel list of the logged-in identity
 * @description
 * - All tunnel fields are guarded by mu, the engine shares the same lock
 * - Only settings (sandbox id, port) are persisted, runtime state is rebuilt on load
 */
type Registry struct {
	mu       sync.Mutex
	store    SettingsStore
	tunnels  []*TunnelInstance
	validate *validator.Validate
}

func NewRegistry(store SettingsStore) *Registry {
	v := validator.New()
	err := v.RegisterValidation("digits", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		for i := 0; i < len(s); i++ {
			if s[i] < '0' || s[i] > '9' {
				return false
			}
		}
		return true
	})
	if err != nil {
		panic(fmt.Sprintf("failed to register digits validation: %v", err))
	}
	return &Registry{store: store, validate: v}
}

/**
 * Load tunnel settings from the store
 * @returns {error} Returns error if the store cannot be read, the list is then empty
 * @description
 * - Every loaded tunnel starts in "unknown" with no pids, the engine probes it on the next tick
 * - Settings that break the add rules (format, duplicate port) are skipped with a warning
 */
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked()
}

func (r *Registry) loadLocked() error {
	r.tunnels = nil
	if r.store == nil {
		return nil
	}
	settings, err := r.store.Load()
	if err != nil {
		return err
	}
	seen := make(map[int]bool, len(settings))
	for i, s := range settings {
		if err := r.checkSetting(s, seen); err != nil {
			logger.Warnf("Skipping tunnel setting #%d (sandbox %d, port %d): %v", i, s.SandboxID, s.Port, err)
			continue
		}
		seen[s.Port] = true
		r.tunnels = append(r.tunnels, newTunnelInstance(s, models.StateUnknown))
	}
	logger.Infof("Loaded %d tunnel(s)", len(r.tunnels))
	return nil
}

/**
 * Rebind switches the registry to another identity's store
 * @param {SettingsStore} store - Store of the new identity, nil when logged out
 * @returns {error} Returns error if the new store cannot be read
 */
func (r *Registry) Rebind(store SettingsStore) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store = store
	return r.loadLocked()
}

// persistLocked 保存当前列表，调用方持有 mu
func (r *Registry) persistLocked() error {
	if r.store == nil {
		return ErrNotAuthenticated
	}
	settings := make([]models.TunnelSetting, 0, len(r.tunnels))
	for _, t := range r.tunnels {
		settings = append(settings, t.Setting())
	}
	return r.store.Save(settings)
}

// checkSetting 对持久化的配置套用与 Add 相同的规则，seen 为已加载的端口
func (r *Registry) checkSetting(s models.TunnelSetting, seen map[int]bool) error {
	if _, err := r.ValidateSandboxID(fmt.Sprintf("%04d", s.SandboxID)); err != nil {
		return err
	}
	if _, err := r.ValidatePort(strconv.Itoa(s.Port)); err != nil {
		return err
	}
	if seen[s.Port] {
		return fmt.Errorf("%w: %d", ErrPortOccupied, s.Port)
	}
	return nil
}

// ValidateSandboxID 沙箱号必须是4位ASCII数字
func (r *Registry) ValidateSandboxID(sandboxID string) (int, error) {
	if err := r.validate.Var(sandboxID, "required,len=4,digits"); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSandboxID, sandboxID)
	}
	id, _ := strconv.Atoi(sandboxID)
	return id, nil
}

// ValidatePort 端口必须是以2开头的5位数字
func (r *Registry) ValidatePort(port string) (int, error) {
	if err := r.validate.Var(port, "required,len=5,digits,startswith=2"); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPort, port)
	}
	p, _ := strconv.Atoi(port)
	return p, nil
}

/**
 * Add a tunnel
 * @param {string} sandboxID - Exactly 4 ASCII digits
 * @param {string} port - Exactly 5 digits starting with 2, unused by other tunnels
 * @returns {(int, models.Tunnel, error)} Index and snapshot of the new tunnel
 * @description
 * - The new tunnel starts "closed"
 * - If the list cannot be saved the tunnel is not added
 * @throws
 * - ErrInvalidSandboxID, ErrInvalidPort, ErrPortOccupied
 */
func (r *Registry) Add(sandboxID, port string) (int, models.Tunnel, error) {
	id, err := r.ValidateSandboxID(sandboxID)
	if err != nil {
		return -1, models.Tunnel{}, err
	}
	p, err := r.ValidatePort(port)
	if err != nil {
		return -1, models.Tunnel{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tunnels {
		if t.SSHPort == p {
			return -1, models.Tunnel{}, fmt.Errorf("%w: %d", ErrPortOccupied, p)
		}
	}
	ti := newTunnelInstance(models.TunnelSetting{SandboxID: id, Port: p}, models.StateClosed)
	r.tunnels = append(r.tunnels, ti)
	if err := r.persistLocked(); err != nil {
		r.tunnels = r.tunnels[:len(r.tunnels)-1]
		return -1, models.Tunnel{}, fmt.Errorf("failed to save tunnels: %w", err)
	}
	index := len(r.tunnels) - 1
	logger.Infof("Tunnel%d added - %s", index, ti.Title())
	return index, ti.Tunnel, nil
}

/**
 * Delete a closed tunnel
 * @param {int} index - Position in the list
 * @returns {(models.Tunnel, error)} Snapshot of the removed tunnel
 * @throws
 * - ErrIndexOutOfRange, ErrNotClosed
 */
func (r *Registry) Delete(index int) (models.Tunnel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ti, err := r.getLocked(index)
	if err != nil {
		return models.Tunnel{}, err
	}
	if ti.State != models.StateClosed {
		return models.Tunnel{}, fmt.Errorf("%w: tunnel%d is %s", ErrNotClosed, index, ti.State)
	}
	prev := r.tunnels
	r.tunnels = append(append([]*TunnelInstance{}, prev[:index]...), prev[index+1:]...)
	if err := r.persistLocked(); err != nil {
		r.tunnels = prev
		return models.Tunnel{}, fmt.Errorf("failed to save tunnels: %w", err)
	}
	logger.Infof("Tunnel%d deleted - %s", index, ti.Title())
	return ti.Tunnel, nil
}

// List 返回按插入顺序排列的隧道快照
func (r *Registry) List() []models.Tunnel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listLocked()
}

func (r *Registry) listLocked() []models.Tunnel {
	out := make([]models.Tunnel, 0, len(r.tunnels))
	for _, t := range r.tunnels {
		out = append(out, t.Tunnel)
	}
	return out
}

func (r *Registry) Get(index int) (models.Tunnel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ti, err := r.getLocked(index)
	if err != nil {
		return models.Tunnel{}, err
	}
	return ti.Tunnel, nil
}

// Detail 返回隧道快照及其进程句柄信息
func (r *Registry) Detail(index int) (models.TunnelDetail, error) {
	r.mu.Lock()
	ti, err := r.getLocked(index)
	if err != nil {
		r.mu.Unlock()
		return models.TunnelDetail{}, err
	}
	detail := models.TunnelDetail{Index: index, Tunnel: ti.Tunnel}
	bastion, ssh := ti.bastion, ti.ssh
	r.mu.Unlock()

	if bastion != nil {
		d := bastion.GetDetail()
		detail.Bastion = &d
	}
	if ssh != nil {
		d := ssh.GetDetail()
		detail.SSH = &d
	}
	return detail, nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tunnels)
}

func (r *Registry) getLocked(index int) (*TunnelInstance, error) {
	if index < 0 || index >= len(r.tunnels) {
		return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	return r.tunnels[index], nil
}

// indexOfLocked 返回实例当前位置，已被删除时返回 -1
func (r *Registry) indexOfLocked(ti *TunnelInstance) int {
	for i, t := range r.tunnels {
		if t == ti {
			return i
		}
	}
	return -1
}

// SuggestPort 返回从 22222 起第一个未被其他隧道使用的端口
func (r *Registry) SuggestPort() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	used := make(map[int]bool, len(r.tunnels))
	for _, t := range r.tunnels {
		used[t.SSHPort] = true
	}
	port := DefaultPort
	for used[port] {
		port++
	}
	return port
}

// Eligible 返回满足条件的隧道下标，用于交互式选择
func (r *Registry) Eligible(filter func(models.Tunnel) bool) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for i, t := range r.tunnels {
		if filter == nil || filter(t.Tunnel) {
			out = append(out, i)
		}
	}
	return out
}
