package core

import (
	"time"

	"gorm.io/datatypes"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	StatusPending  JobStatus = "pending"  // Persisted, not yet handed to a process
	StatusRunning  JobStatus = "running"  // Process started, pid recorded
	StatusFinished JobStatus = "finished" // Process exited and a Result was stored
	StatusFailed   JobStatus = "failed"   // Finalized without a Result
)

// Job is one firmware analysis request and its tracked lifecycle.
type Job struct {
	ID      string    `gorm:"primaryKey;size:36"`
	Name    string    `gorm:"size:255"`
	Version string    `gorm:"size:255"`
	Notes   string    `gorm:"type:text"`
	Flags   string    `gorm:"type:text"`
	Status  JobStatus `gorm:"index;size:20;default:'pending'"`
	Outcome string    `gorm:"size:20"`

	// LastError is sanitized before storage.
	LastError string `gorm:"type:text"`

	WorkDir string `gorm:"type:text"`
	LogDir  string `gorm:"type:text"`
	Command string `gorm:"type:text"`
	PID     int

	StartedAt time.Time `gorm:"index"`
	EndedAt   *time.Time
	Duration  time.Duration
	Finished  bool `gorm:"index;default:false"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Result is the parsed report of exactly one finished Job.
type Result struct {
	ID    uint   `gorm:"primaryKey"`
	JobID string `gorm:"uniqueIndex;size:36;not null"`

	ResultFields

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// ResultFields is the typed projection of an analysis report.
// Counts and percentages default to zero, text to the empty string.
type ResultFields struct {
	EmbaCommand          string `gorm:"type:text" json:"emba_command"`
	ArchitectureVerified string `gorm:"size:100" json:"architecture_verified"`
	OSVerified           string `gorm:"size:100" json:"os_verified"`

	Files            int     `json:"files"`
	Directories      int     `json:"directories"`
	EntropyValue     float64 `json:"entropy_value"`
	ShellScripts     int     `json:"shell_scripts"`
	ShellScriptVulns int     `json:"shell_script_vulns"`
	KernelModules    int     `json:"kernel_modules"`
	KernelModulesLic int     `json:"kernel_modules_lic"`
	InterestingFiles int     `json:"interesting_files"`
	PostFiles        int     `json:"post_files"`

	Canary      int `json:"canary"`
	CanaryPer   int `json:"canary_per"`
	Relro       int `json:"relro"`
	RelroPer    int `json:"relro_per"`
	NoExec      int `json:"no_exec"`
	NoExecPer   int `json:"no_exec_per"`
	Pie         int `json:"pie"`
	PiePer      int `json:"pie_per"`
	Stripped    int `json:"stripped"`
	StrippedPer int `json:"stripped_per"`
	BinsChecked int `json:"bins_checked"`

	Strcpy    int            `json:"strcpy"`
	StrcpyBin datatypes.JSON `json:"strcpy_bin"`

	VersionsIdentified   int `json:"versions_identified"`
	CveHigh              int `json:"cve_high"`
	CveMedium            int `json:"cve_medium"`
	CveLow               int `json:"cve_low"`
	Exploits             int `json:"exploits"`
	MetasploitModules    int `json:"metasploit_modules"`
	Certificates         int `json:"certificates"`
	CertificatesOutdated int `json:"certificates_outdated"`
}

// FinishUpdate carries the finalization values written once per Job.
// A non-zero StartedAt replaces the submission time so that Duration
// equals EndedAt minus StartedAt.
type FinishUpdate struct {
	StartedAt time.Time
	EndedAt   time.Time
	Duration  time.Duration
	Status    JobStatus
	Outcome   string
	Error     string
}
