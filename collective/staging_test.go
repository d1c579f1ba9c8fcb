package collective

import (
	"errors"
	"sync"
	"testing"
)

func TestInitializeIdempotent(t *testing.T) {
	thunk, err := NewRaggedAllToAllThunk(validOp(), make([]Buffer, numRaggedOperands), ThunkConfig{})
	if err != nil {
		t.Fatalf("NewRaggedAllToAllThunk failed: %v", err)
	}
	device := &fakeDevice{ordinal: 0}

	if err := thunk.Initialize(device); err != nil {
		t.Fatalf("first Initialize failed: %v", err)
	}
	if err := thunk.Initialize(device); err != nil {
		t.Fatalf("second Initialize failed: %v", err)
	}
	if got := device.allocs.Load(); got != 1 {
		t.Fatalf("expected exactly one staging allocation, got %d", got)
	}
}

func TestInitializeDistinctDevices(t *testing.T) {
	thunk, err := NewRaggedAllToAllThunk(validOp(), make([]Buffer, numRaggedOperands), ThunkConfig{})
	if err != nil {
		t.Fatalf("NewRaggedAllToAllThunk failed: %v", err)
	}
	dev0 := &fakeDevice{ordinal: 0}
	dev1 := &fakeDevice{ordinal: 1}

	if err := thunk.Initialize(dev0); err != nil {
		t.Fatalf("Initialize(dev0) failed: %v", err)
	}
	if err := thunk.Initialize(dev1); err != nil {
		t.Fatalf("Initialize(dev1) failed: %v", err)
	}

	region0, err := thunk.staging.region(dev0)
	if err != nil {
		t.Fatalf("region(dev0) failed: %v", err)
	}
	region1, err := thunk.staging.region(dev1)
	if err != nil {
		t.Fatalf("region(dev1) failed: %v", err)
	}
	if want := int(4 * thunk.RaggedRowCount() * stagingWordSize); region0.Len() != want {
		t.Fatalf("staging region size: got %d want %d", region0.Len(), want)
	}
	if &region0.Bytes()[0] == &region1.Bytes()[0] {
		t.Fatal("devices share a staging region")
	}
}

func TestInitializeConcurrent(t *testing.T) {
	thunk, err := NewRaggedAllToAllThunk(validOp(), make([]Buffer, numRaggedOperands), ThunkConfig{})
	if err != nil {
		t.Fatalf("NewRaggedAllToAllThunk failed: %v", err)
	}

	devices := make([]*fakeDevice, 8)
	for i := range devices {
		devices[i] = &fakeDevice{ordinal: i}
	}

	var wg sync.WaitGroup
	errs := make([]error, len(devices)*4)
	for i := 0; i < len(errs); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = thunk.Initialize(devices[i%len(devices)])
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("concurrent Initialize %d failed: %v", i, err)
		}
	}
	for _, device := range devices {
		if got := device.allocs.Load(); got != 1 {
			t.Fatalf("device %d allocated %d times", device.ordinal, got)
		}
	}
}

func TestStagingRegionBeforeInitialize(t *testing.T) {
	var cache stagingCache
	if _, err := cache.region(&fakeDevice{ordinal: 3}); !errors.Is(err, ErrDeviceNotInitialized) {
		t.Fatalf("expected ErrDeviceNotInitialized, got %v", err)
	}
}

func TestInitializeAllocationFailureRecovers(t *testing.T) {
	thunk, err := NewRaggedAllToAllThunk(validOp(), make([]Buffer, numRaggedOperands), ThunkConfig{})
	if err != nil {
		t.Fatalf("NewRaggedAllToAllThunk failed: %v", err)
	}
	device := &fakeDevice{ordinal: 0, failAlloc: errors.New("out of pinned memory")}

	if err := thunk.Initialize(device); err == nil {
		t.Fatal("expected allocation failure")
	}
	if _, err := thunk.staging.region(device); !errors.Is(err, ErrDeviceNotInitialized) {
		t.Fatalf("failed Initialize must not leave an entry: %v", err)
	}

	device.failAlloc = nil
	if err := thunk.Initialize(device); err != nil {
		t.Fatalf("retry Initialize failed: %v", err)
	}
	if _, err := thunk.staging.region(device); err != nil {
		t.Fatalf("region after retry failed: %v", err)
	}
}
