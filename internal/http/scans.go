package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/lending/internal/scheduler"
)

type ScansController struct {
	scans ScanRunner
}

func NewScansController(scans ScanRunner) *ScansController {
	return &ScansController{scans: scans}
}

type ScanJobStatus struct {
	Job     scheduler.Job `json:"job"`
	NextRun *time.Time    `json:"next_run,omitempty"`
}

func (ctrl *ScansController) Status(c *gin.Context) {
	jobs := []scheduler.Job{scheduler.JobOverdue, scheduler.JobExpired, scheduler.JobAuditCleanup}
	statuses := make([]ScanJobStatus, 0, len(jobs))
	for _, job := range jobs {
		statuses = append(statuses, ScanJobStatus{Job: job, NextRun: ctrl.scans.NextRun(job)})
	}
	c.JSON(http.StatusOK, gin.H{"running": ctrl.scans.IsRunning(), "jobs": statuses})
}

// Run triggers a scan immediately and waits for it to finish.
func (ctrl *ScansController) Run(c *gin.Context) {
	job, err := scheduler.ParseJob(c.Param("job"))
	if err != nil {
		respondNotFound(c, "scan job")
		return
	}

	count, err := ctrl.scans.RunNow(c.Request.Context(), job)
	switch {
	case errors.Is(err, scheduler.ErrJobRunning):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "scan already running", Code: "SCAN_RUNNING"})
		return
	case errors.Is(err, scheduler.ErrJobDisabled):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "scan job not configured"})
		return
	case err != nil:
		respondLendingError(c, err, "scan "+string(job))
		return
	}
	respondSuccess(c, "scan finished", gin.H{"job": job, "count": count})
}
