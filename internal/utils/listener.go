package utils

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
)

// NetProtocol 监听协议
type NetProtocol string

const (
	ProtoTCP4 NetProtocol = "tcp4"
	ProtoTCP6 NetProtocol = "tcp6"
)

/**
 * Find processes listening on a local endpoint
 * @param {context.Context} ctx - Bounds the external probe commands
 * @param {NetProtocol} proto - Only LISTEN sockets of this protocol are considered
 * @param {string} addr - Local address, e.g. 127.0.0.1
 * @param {int} port - Local port
 * @param {string} image - Executable name the listener must have, empty matches any
 * @returns {([]int, error)} Distinct PIDs in discovery order
 * @description
 * - macOS uses lsof, Windows uses netstat and tasklist, other systems read the socket table through gopsutil
 * - "nothing found" is an empty slice with nil error
 */
func FindListeners(ctx context.Context, proto NetProtocol, addr string, port int, image string) ([]int, error) {
	return findListeners(ctx, proto, addr, port, image)
}

func appendUnique(pids []int, pid int) []int {
	for _, p := range pids {
		if p == pid {
			return pids
		}
	}
	return append(pids, pid)
}

// parseLsof 解析 `lsof -anP` 输出，返回本地端点匹配的PID
func parseLsof(output, addr string, port int) []int {
	endpoint := fmt.Sprintf("%s:%d", addr, port)
	pids := []int{}
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		// COMMAND PID USER FD TYPE DEVICE SIZE/OFF NODE NAME
		if len(fields) < 9 || fields[0] == "COMMAND" {
			continue
		}
		matched := false
		for _, f := range fields[8:] {
			if f == endpoint {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		pid, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		pids = appendUnique(pids, pid)
	}
	return pids
}

// parseNetstat 解析 `netstat -ano -p TCP` 输出，只保留 LISTENING 行
func parseNetstat(output, addr string, port int) []int {
	endpoint := fmt.Sprintf("%s:%d", addr, port)
	pids := []int{}
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		// Proto Local-Address Foreign-Address State PID
		if len(fields) != 5 || !strings.HasPrefix(strings.ToUpper(fields[0]), "TCP") {
			continue
		}
		if fields[1] != endpoint || fields[3] != "LISTENING" {
			continue
		}
		pid, err := strconv.Atoi(fields[4])
		if err != nil {
			continue
		}
		pids = appendUnique(pids, pid)
	}
	return pids
}

// parseTasklist 解析 `tasklist /FO CSV /NH` 输出，返回映像名匹配的PID集合
func parseTasklist(output, image string) map[int]bool {
	pids := map[int]bool{}
	r := csv.NewReader(strings.NewReader(output))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return pids
	}
	for _, rec := range records {
		if len(rec) < 2 || !strings.EqualFold(strings.TrimSpace(rec[0]), image) {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(rec[1]))
		if err != nil {
			continue
		}
		pids[pid] = true
	}
	return pids
}

// filterPIDs keeps the order of pids, dropping those absent from allowed
func filterPIDs(pids []int, allowed map[int]bool) []int {
	out := []int{}
	for _, pid := range pids {
		if allowed[pid] {
			out = append(out, pid)
		}
	}
	return out
}
