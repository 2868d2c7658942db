package store

import (
	"testing"

	"docpack/internal/errs"
	"docpack/internal/models"
)

func TestCommitPrecondition(t *testing.T) {
	cases := []struct {
		name     string
		job      models.Job
		pkg      models.Package
		wantCode errs.Code
	}{
		{
			name: "first version commits",
			job:  models.Job{Status: models.JobRunning, TargetVersion: 1},
			pkg:  models.Package{VersionCounter: 0, ReservedVersion: 1},
		},
		{
			name: "regeneration commits",
			job:  models.Job{Status: models.JobRunning, TargetVersion: 3},
			pkg:  models.Package{VersionCounter: 2, ReservedVersion: 3},
		},
		{
			name: "skipped failed version commits",
			job:  models.Job{Status: models.JobRunning, TargetVersion: 3},
			pkg:  models.Package{VersionCounter: 1, ReservedVersion: 3},
		},
		{
			name:     "queued job cannot commit",
			job:      models.Job{Status: models.JobQueued, TargetVersion: 1},
			pkg:      models.Package{VersionCounter: 0, ReservedVersion: 1},
			wantCode: errs.CodeInvalidTransition,
		},
		{
			name:     "done job cannot commit again",
			job:      models.Job{Status: models.JobDone, TargetVersion: 1},
			pkg:      models.Package{VersionCounter: 1, ReservedVersion: 1},
			wantCode: errs.CodeInvalidTransition,
		},
		{
			name:     "superseded reservation is rejected",
			job:      models.Job{Status: models.JobRunning, TargetVersion: 2},
			pkg:      models.Package{VersionCounter: 1, ReservedVersion: 3},
			wantCode: errs.CodeVersionConflict,
		},
		{
			name:     "already committed version is rejected",
			job:      models.Job{Status: models.JobRunning, TargetVersion: 2},
			pkg:      models.Package{VersionCounter: 2, ReservedVersion: 2},
			wantCode: errs.CodeVersionConflict,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := commitPrecondition(tc.job, tc.pkg)
			if tc.wantCode == "" {
				if err != nil {
					t.Fatalf("expected commit allowed, got %v", err)
				}
				return
			}
			if !errs.IsCode(err, tc.wantCode) {
				t.Fatalf("expected %s, got %v", tc.wantCode, err)
			}
		})
	}
}

func TestFailureDowngradesPackage(t *testing.T) {
	if !failureDowngradesPackage(models.Package{VersionCounter: 0}) {
		t.Fatal("a package with no committed version must go to error on failure")
	}
	if failureDowngradesPackage(models.Package{VersionCounter: 2, Status: models.PackageGenerated}) {
		t.Fatal("a failed regeneration must keep the generated package intact")
	}
}
