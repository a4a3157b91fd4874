package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/OperativeX/processmind-sub001/internal/data/repos"
	"github.com/OperativeX/processmind-sub001/internal/data/repos/testutil"
	"github.com/OperativeX/processmind-sub001/internal/platform/dbctx"
	"github.com/OperativeX/processmind-sub001/internal/platform/gcp"
)

// fakeBucket serves a fixed object listing; the other methods are not used
// by the tracking service.
type fakeBucket struct {
	objects []gcp.ObjectInfo
}

func (b *fakeBucket) UploadFile(ctx context.Context, key string, file io.Reader) error {
	return fmt.Errorf("not implemented")
}
func (b *fakeBucket) DeleteFile(ctx context.Context, key string) error {
	return fmt.Errorf("not implemented")
}
func (b *fakeBucket) GetObjectAttrs(ctx context.Context, key string) (*gcp.ObjectAttrs, error) {
	return nil, fmt.Errorf("not implemented")
}
func (b *fakeBucket) ListObjects(ctx context.Context, prefix string) ([]gcp.ObjectInfo, error) {
	var out []gcp.ObjectInfo
	for _, obj := range b.objects {
		if strings.HasPrefix(obj.Key, prefix) {
			out = append(out, obj)
		}
	}
	return out, nil
}
func (b *fakeBucket) DeletePrefix(ctx context.Context, prefix string) error {
	return fmt.Errorf("not implemented")
}
func (b *fakeBucket) GetPublicURL(key string) string { return "https://cdn.example.com/" + key }

func TestRecordUploadCountsOnce(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	svc := NewStorageTrackingService(db, log, repos.NewStorageUsageRepo(db, log), &fakeBucket{})
	rec := testutil.SeedProcessRecord(t, ctx, tx, uuid.New(), uuid.New())

	applied, err := svc.RecordUpload(dbc, rec, "storage_upload", 1024)
	if err != nil {
		t.Fatalf("RecordUpload #1: %v", err)
	}
	if !applied {
		t.Fatal("first upload event should be counted")
	}

	// Redelivered job replays the same accounting call.
	applied, err = svc.RecordUpload(dbc, rec, "storage_upload", 1024)
	if err != nil {
		t.Fatalf("RecordUpload #2: %v", err)
	}
	if applied {
		t.Fatal("replayed upload event must not double count")
	}

	totals, err := svc.Totals(dbc, rec.TenantID, rec.OwnerUserID)
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if totals.TotalBytes != 1024 || totals.FileCount != 1 {
		t.Fatalf("totals after duplicate upload: %+v", totals)
	}
}

func TestRecordRemovalClampsAtZero(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	svc := NewStorageTrackingService(db, log, repos.NewStorageUsageRepo(db, log), &fakeBucket{})
	rec := testutil.SeedProcessRecord(t, ctx, tx, uuid.New(), uuid.New())

	if _, err := svc.RecordRemoval(dbc, rec, "record_delete", 4096); err != nil {
		t.Fatalf("RecordRemoval: %v", err)
	}
	totals, err := svc.Totals(dbc, rec.TenantID, rec.OwnerUserID)
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if totals.TotalBytes != 0 || totals.FileCount != 0 {
		t.Fatalf("counters must clamp at zero, got %+v", totals)
	}
}

func TestReconcileOverwritesFromBucket(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	tenantID := uuid.New()
	ownerID := uuid.New()
	otherTenant := uuid.New()

	bucket := &fakeBucket{objects: []gcp.ObjectInfo{
		{Key: gcp.TenantPrefix(tenantID) + "records/a/processed/a.mp4", Size: 700},
		{Key: gcp.TenantPrefix(tenantID) + "records/b/processed/b.mp4", Size: 300},
		{Key: gcp.TenantPrefix(otherTenant) + "records/c/processed/c.mp4", Size: 999},
	}}

	svc := NewStorageTrackingService(db, log, repos.NewStorageUsageRepo(db, log), bucket)
	rec := testutil.SeedProcessRecord(t, ctx, tx, tenantID, ownerID)

	// Counter says 1024 from one upload; the bucket actually holds 1000
	// across two objects.
	if _, err := svc.RecordUpload(dbc, rec, "storage_upload", 1024); err != nil {
		t.Fatalf("RecordUpload: %v", err)
	}

	res, err := svc.Reconcile(dbc, tenantID, ownerID)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.TotalBytes != 1000 || res.FileCount != 2 {
		t.Fatalf("reconcile should sum only this tenant's objects: %+v", res)
	}
	if res.DriftBytes != -24 || res.DriftFiles != 1 {
		t.Fatalf("unexpected drift: %+v", res)
	}

	totals, err := svc.Totals(dbc, tenantID, ownerID)
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if totals.TotalBytes != 1000 || totals.FileCount != 2 {
		t.Fatalf("totals not overwritten: %+v", totals)
	}
}
