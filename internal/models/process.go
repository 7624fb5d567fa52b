package models

import "time"

type RunStatus string

const (
	// 表示正在运行
	StatusRunning RunStatus = "running"
	// 表示进程自行退出，退出码为0
	StatusExited RunStatus = "exited"
	// 表示进程启动失败或以非0退出码退出
	StatusError RunStatus = "error"
	// 表示被 keeper 主动终止
	StatusStopped RunStatus = "stopped"
)

type ProcessDetail struct {
	Title          string    `json:"title"`          //显示用的名字
	ProcessName    string    `json:"processName"`    //进程名，用于查找进程
	Command        string    `json:"command"`        //进程启动命令
	Args           []string  `json:"args"`           //进程参数
	WorkDir        string    `json:"workDir"`        //工作目录
	Detached       bool      `json:"detached"`       //是否脱离父进程运行
	Pid            int       `json:"pid"`            //进程PID
	Status         RunStatus `json:"status"`         //状态
	ExitCode       int       `json:"exitCode"`       //退出码
	StartTime      time.Time `json:"startTime"`      //启动时间
	LastExitTime   time.Time `json:"lastExitTime"`   //最后一次退出的时间
	LastExitReason string    `json:"lastExitReason"` //最后一次退出的原因
}

// TunnelDetail 隧道及其当前持有的外部进程
type TunnelDetail struct {
	Index   int            `json:"index"`
	Tunnel  Tunnel         `json:"tunnel"`
	Bastion *ProcessDetail `json:"bastion,omitempty"`
	SSH     *ProcessDetail `json:"ssh,omitempty"`
}
