// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-keychain.
//
// go-keychain is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package metrics

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsEnabled(t *testing.T) {
	assert.True(t, IsEnabled())

	Disable()
	assert.False(t, IsEnabled())

	Enable()
	assert.True(t, IsEnabled())
}

func TestRecordOperation(t *testing.T) {
	Enable()
	OperationsTotal.Reset()
	OperationDuration.Reset()

	RecordOperation(OpSeal, "enclave", StatusSuccess, 0.5)
	assert.Equal(t, 1, testutil.CollectAndCount(OperationsTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(OperationDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(OperationsTotal.WithLabelValues(OpSeal, "enclave", StatusSuccess)))

	RecordOperation(OpUnseal, "keyring", StatusError, 0.1)
	assert.Equal(t, 2, testutil.CollectAndCount(OperationsTotal))
}

func TestRecordOperationWhenDisabled(t *testing.T) {
	Disable()
	defer Enable()
	OperationsTotal.Reset()

	RecordOperation(OpStore, "acl", StatusSuccess, 0.5)
	assert.Equal(t, 0, testutil.CollectAndCount(OperationsTotal))
}

func TestRecordError(t *testing.T) {
	Enable()
	ErrorsTotal.Reset()

	RecordError(OpUnseal, "enclave", "user_cancelled")
	RecordError(OpUnseal, "enclave", "user_cancelled")
	RecordError(OpSeal, "dpapi", "seal_error")

	assert.Equal(t, 2, testutil.CollectAndCount(ErrorsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(ErrorsTotal.WithLabelValues(OpUnseal, "enclave", "user_cancelled")))
}

func TestRecordPromptAndLockout(t *testing.T) {
	Enable()
	PromptsTotal.Reset()

	RecordPrompt("success")
	RecordPrompt("failed")
	RecordPrompt("failed")
	assert.Equal(t, 2.0, testutil.ToFloat64(PromptsTotal.WithLabelValues("failed")))

	before := testutil.ToFloat64(Lockouts)
	RecordLockout()
	assert.Equal(t, before+1, testutil.ToFloat64(Lockouts))
}

func TestActiveConnections(t *testing.T) {
	Enable()
	ActiveConnections.Set(0)

	IncrementActiveConnections()
	IncrementActiveConnections()
	DecrementActiveConnections()
	assert.Equal(t, 1.0, testutil.ToFloat64(ActiveConnections))
}

func TestSetBackendHealth(t *testing.T) {
	Enable()
	BackendHealthy.Reset()

	SetBackendHealth("enclave", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(BackendHealthy.WithLabelValues("enclave")))

	SetBackendHealth("enclave", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(BackendHealthy.WithLabelValues("enclave")))
}

func TestMetricsNamespace(t *testing.T) {
	assert.Equal(t, "keystore", Namespace)
}

func TestConcurrentMetricUpdates(t *testing.T) {
	Enable()
	OperationsTotal.Reset()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			RecordOperation(OpExists, "acl", StatusSuccess, 0.001)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50.0, testutil.ToFloat64(OperationsTotal.WithLabelValues(OpExists, "acl", StatusSuccess)))
}

func BenchmarkRecordOperation(b *testing.B) {
	Enable()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		RecordOperation(OpRetrieve, "enclave", StatusSuccess, 0.001)
	}
}
