package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"mailvault/internal/format"
	"mailvault/internal/models"
)

var outputFormatter format.Formatter = format.JSONFormatter{}

func writeJSON(payload any) error {
	return outputFormatter.Write(os.Stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

func writeSnapshotList(snapshots []models.Snapshot) error {
	for _, snapshot := range snapshots {
		if err := writePlain("%s\n", formatSnapshotLine(snapshot)); err != nil {
			return err
		}
	}
	return nil
}

func writeSnapshotDetail(snapshot *models.Snapshot) error {
	lines := []string{
		fmt.Sprintf("id: %d", snapshot.ID),
		fmt.Sprintf("scope: %s", snapshot.Scope),
		fmt.Sprintf("status: %s", snapshot.Status),
		fmt.Sprintf("started_at: %s", formatTime(snapshot.StartedAt)),
		fmt.Sprintf("items_recorded: %d", snapshot.ItemsRecorded),
		fmt.Sprintf("items_skipped: %d", snapshot.ItemsSkipped),
	}
	if snapshot.FinishedAt != nil {
		lines = append(lines, fmt.Sprintf("finished_at: %s", formatTime(*snapshot.FinishedAt)))
	}
	if snapshot.FailureReason != "" {
		lines = append(lines, fmt.Sprintf("failure_reason: %s", snapshot.FailureReason))
	}
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func formatSnapshotLine(snapshot models.Snapshot) string {
	return fmt.Sprintf("#%d [%s] %s - %d recorded, %d skipped (%s)",
		snapshot.ID, snapshot.Scope, snapshot.Status,
		snapshot.ItemsRecorded, snapshot.ItemsSkipped, formatTime(snapshot.StartedAt))
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
