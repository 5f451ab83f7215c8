package domain

import "time"

type ConnectionType string

const (
	ConnectionNetwork   ConnectionType = "NETWORK"
	ConnectionUSB       ConnectionType = "USB"
	ConnectionBluetooth ConnectionType = "BLUETOOTH"
	ConnectionCloud     ConnectionType = "CLOUD"
)

type PrinterStatus string

const (
	PrinterStatusOnline  PrinterStatus = "ONLINE"
	PrinterStatusOffline PrinterStatus = "OFFLINE"
	PrinterStatusUnknown PrinterStatus = "UNKNOWN"
)

type PrinterCapabilities struct {
	Cut        bool `json:"cut"`
	Color      bool `json:"color"`
	Graphics   bool `json:"graphics"`
	PaperWidth int  `json:"paperWidth"`
}

type StationMapping struct {
	StationID string `json:"stationId"`
	IsPrimary bool   `json:"isPrimary"`
}

type PrinterConfig struct {
	ID                string
	BranchID          string
	Name              string
	ConnectionType    ConnectionType
	Address           string
	Port              int
	Capabilities      PrinterCapabilities
	Active            bool
	Status            PrinterStatus
	TotalJobs         int
	SuccessfulJobs    int
	FailedJobs        int
	LastError         string
	LastErrorAt       *time.Time
	LastPrintAt       *time.Time
	LastHealthCheckAt *time.Time
	StationMappings   []StationMapping
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SuccessRate is successfulJobs/totalJobs. A printer that has never printed
// counts as fully reliable.
func (p *PrinterConfig) SuccessRate() float64 {
	if p.TotalJobs == 0 {
		return 1
	}
	return float64(p.SuccessfulJobs) / float64(p.TotalJobs)
}

// ServesStation reports whether the printer is mapped to the station and
// whether it is the primary printer for it.
func (p *PrinterConfig) ServesStation(stationID string) (mapped, primary bool) {
	for _, m := range p.StationMappings {
		if m.StationID == stationID {
			return true, m.IsPrimary
		}
	}
	return false, false
}

func (p *PrinterConfig) RecordSuccess(now time.Time) {
	p.TotalJobs++
	p.SuccessfulJobs++
	t := now
	p.LastPrintAt = &t
	p.UpdatedAt = now
}

func (p *PrinterConfig) RecordFailure(message string, now time.Time) {
	p.TotalJobs++
	p.FailedJobs++
	p.LastError = message
	t := now
	p.LastErrorAt = &t
	p.UpdatedAt = now
}
