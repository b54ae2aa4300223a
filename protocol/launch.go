package protocol

import "encoding/json"

// LaunchArguments launch请求的参数，字段与dlv dap一致
type LaunchArguments struct {
	// Mode debug / exec / test
	Mode    string `json:"mode"`
	Program string `json:"program"`
	// StopOnEntry 在程序的第一条指令处暂停
	StopOnEntry bool     `json:"stopOnEntry"`
	Args        []string `json:"args,omitempty"`
	Cwd         string   `json:"cwd,omitempty"`
}

// AttachArguments attach请求的参数
type AttachArguments struct {
	// Mode local表示附加到本机进程
	Mode      string `json:"mode"`
	ProcessID int    `json:"processId"`
}

func NewLaunchArguments(mode string, program string, stopOnEntry bool) json.RawMessage {
	data, _ := json.Marshal(&LaunchArguments{
		Mode:        mode,
		Program:     program,
		StopOnEntry: stopOnEntry,
	})
	return data
}

func NewAttachArguments(pid int) json.RawMessage {
	data, _ := json.Marshal(&AttachArguments{
		Mode:      "local",
		ProcessID: pid,
	})
	return data
}
