package collective

import (
	"fmt"
	"sync"
)

// stagingWordSize is the per-value stride inside the staging buffer. Offsets
// and sizes can be 32- or 64-bit, so every value is given 8 bytes.
const stagingWordSize = 8

// stagingCache holds one lazily allocated host staging region per device.
// The lock guards only the map; it is never held across the blocking wait or
// the transfer loop.
type stagingCache struct {
	mu      sync.Mutex
	regions map[Device]*HostBuffer
}

// initialize allocates the staging region for device if it does not exist.
// Safe to call concurrently for distinct devices and repeatedly for the same
// device; the second caller observes the existing entry.
func (c *stagingCache) initialize(device Device, byteSize int64) error {
	if device == nil {
		return fmt.Errorf("collective: initialize requires a device")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.regions == nil {
		c.regions = make(map[Device]*HostBuffer)
	}
	if _, ok := c.regions[device]; ok {
		return nil
	}
	buf, err := device.AllocateHostBuffer(byteSize)
	if err != nil {
		return fmt.Errorf("collective: allocate %d-byte staging buffer for device %d: %w", byteSize, device.Ordinal(), err)
	}
	c.regions[device] = buf
	return nil
}

// region returns the staging region for device, failing if Initialize has not
// succeeded for it.
func (c *stagingCache) region(device Device) (*HostBuffer, error) {
	if device == nil {
		return nil, fmt.Errorf("collective: lookup requires a device")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	buf, ok := c.regions[device]
	if !ok {
		return nil, fmt.Errorf("%w: device %d", ErrDeviceNotInitialized, device.Ordinal())
	}
	return buf, nil
}
