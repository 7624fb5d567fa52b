package models

// HealthResponse 健康检查响应结构
type HealthResponse struct {
	Version   string  `json:"version"`
	StartTime string  `json:"startTime"`
	Status    string  `json:"status"`
	Uptime    string  `json:"uptime"`
	Supported bool    `json:"supported"`
	LoggedIn  bool    `json:"loggedIn"`
	Metrics   Metrics `json:"metrics"`
}

// Metrics 关键指标结构
type Metrics struct {
	TotalRequests int64 `json:"totalRequests"`
	ErrorRequests int64 `json:"errorRequests"`
	TotalTunnels  int   `json:"totalTunnels"`
	OpenedTunnels int   `json:"openedTunnels"`
}
