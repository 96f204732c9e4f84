package collector

import (
	"context"
	"math"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	psnet "github.com/shirou/gopsutil/v3/net"

	"system_bridge/internal/models"
)

// cpu.Percent blocks for this long to measure utilisation
const cpuSampleWindow = time.Second

type CPUData struct {
	Count      int       `json:"count"`
	Model      string    `json:"model,omitempty"`
	Load       float64   `json:"load"`
	LoadPerCPU []float64 `json:"loadPerCpu"`
}

type MemoryData struct {
	Total       uint64  `json:"total"`
	Available   uint64  `json:"available"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"usedPercent"`
	SwapTotal   uint64  `json:"swapTotal"`
	SwapUsed    uint64  `json:"swapUsed"`
}

type DiskData struct {
	Device      string  `json:"device"`
	Mountpoint  string  `json:"mountpoint"`
	Fstype      string  `json:"fstype"`
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"usedPercent"`
}

type SystemData struct {
	Hostname        string `json:"hostname"`
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platformVersion"`
	KernelVersion   string `json:"kernelVersion"`
	Uptime          uint64 `json:"uptime"`
	BootTime        uint64 `json:"bootTime"`
	UUID            string `json:"uuid"`
}

type NetworkData struct {
	Name        string `json:"name"`
	BytesSent   uint64 `json:"bytesSent"`
	BytesRecv   uint64 `json:"bytesRecv"`
	PacketsSent uint64 `json:"packetsSent"`
	PacketsRecv uint64 `json:"packetsRecv"`
}

// RegisterDefaults binds the gopsutil-backed collectors.
func RegisterDefaults(r *Registry) {
	r.Register("cpu", models.DefaultMethod, collectCPU)
	r.Register("cpu", "load", collectCPULoad)
	r.Register("memory", models.DefaultMethod, collectMemory)
	r.Register("disk", models.DefaultMethod, collectDisks)
	r.Register("system", models.DefaultMethod, collectSystem)
	r.Register("system", "uptime", collectUptime)
	r.Register("network", models.DefaultMethod, collectNetwork)
}

// one decimal place keeps noise from producing an event every tick
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func collectCPU(ctx context.Context) (any, error) {
	count, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return nil, err
	}
	perCPU, err := cpu.PercentWithContext(ctx, cpuSampleWindow, true)
	if err != nil {
		return nil, err
	}

	data := CPUData{Count: count, LoadPerCPU: make([]float64, len(perCPU))}
	var sum float64
	for i, p := range perCPU {
		data.LoadPerCPU[i] = round1(p)
		sum += p
	}
	if len(perCPU) > 0 {
		data.Load = round1(sum / float64(len(perCPU)))
	}
	if info, err := cpu.InfoWithContext(ctx); err == nil && len(info) > 0 {
		data.Model = info[0].ModelName
	}
	return data, nil
}

func collectCPULoad(ctx context.Context) (any, error) {
	total, err := cpu.PercentWithContext(ctx, cpuSampleWindow, false)
	if err != nil {
		return nil, err
	}
	if len(total) == 0 {
		return 0.0, nil
	}
	return round1(total[0]), nil
}

func collectMemory(ctx context.Context) (any, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}
	data := MemoryData{
		Total:       vm.Total,
		Available:   vm.Available,
		Used:        vm.Total - vm.Available,
		UsedPercent: round1(vm.UsedPercent),
	}
	if swap, err := mem.SwapMemoryWithContext(ctx); err == nil {
		data.SwapTotal = swap.Total
		data.SwapUsed = swap.Used
	}
	return data, nil
}

func collectDisks(ctx context.Context) (any, error) {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, err
	}
	out := make([]DiskData, 0, len(parts))
	for _, p := range parts {
		u, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil {
			// unreadable mounts (e.g. permission denied) are skipped
			continue
		}
		out = append(out, DiskData{
			Device:      p.Device,
			Mountpoint:  p.Mountpoint,
			Fstype:      p.Fstype,
			Total:       u.Total,
			Used:        u.Used,
			UsedPercent: round1(u.UsedPercent),
		})
	}
	return out, nil
}

func collectSystem(ctx context.Context) (any, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, err
	}
	return SystemData{
		Hostname:        info.Hostname,
		Platform:        info.Platform,
		PlatformVersion: info.PlatformVersion,
		KernelVersion:   info.KernelVersion,
		Uptime:          info.Uptime,
		BootTime:        info.BootTime,
		UUID:            info.HostID,
	}, nil
}

func collectUptime(ctx context.Context) (any, error) {
	return host.UptimeWithContext(ctx)
}

func collectNetwork(ctx context.Context) (any, error) {
	counters, err := psnet.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, err
	}
	out := make([]NetworkData, 0, len(counters))
	for _, c := range counters {
		out = append(out, NetworkData{
			Name:        c.Name,
			BytesSent:   c.BytesSent,
			BytesRecv:   c.BytesRecv,
			PacketsSent: c.PacketsSent,
			PacketsRecv: c.PacketsRecv,
		})
	}
	return out, nil
}
