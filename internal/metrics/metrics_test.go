package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordUpload(t *testing.T) {
	before := testutil.ToFloat64(UploadsTotal.WithLabelValues("success"))
	bytesBefore := testutil.ToFloat64(UploadBytesTotal)

	RecordUpload("success", 1024)
	RecordUpload("quota_exceeded", 2048)

	assert.Equal(t, before+1, testutil.ToFloat64(UploadsTotal.WithLabelValues("success")))
	assert.Equal(t, bytesBefore+1024, testutil.ToFloat64(UploadBytesTotal))
}

func TestRecordStorage(t *testing.T) {
	okBefore := testutil.ToFloat64(StorageOperationsTotal.WithLabelValues("local", "save", "success"))
	errBefore := testutil.ToFloat64(StorageOperationsTotal.WithLabelValues("local", "save", "error"))

	RecordStorage("local", "save", nil)
	RecordStorage("local", "save", errors.New("disk full"))

	assert.Equal(t, okBefore+1, testutil.ToFloat64(StorageOperationsTotal.WithLabelValues("local", "save", "success")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(StorageOperationsTotal.WithLabelValues("local", "save", "error")))
}

func TestRecordCacheLookup(t *testing.T) {
	hits := testutil.ToFloat64(TourCacheLookups.WithLabelValues("hit"))
	RecordCacheLookup(true)
	RecordCacheLookup(false)
	assert.Equal(t, hits+1, testutil.ToFloat64(TourCacheLookups.WithLabelValues("hit")))
}
