//go:build tinygo

package servo

import "sync/atomic"

func getTicks() uint32 {
	return atomic.LoadUint32(&tickCount)
}

func setTicks(t uint32) {
	atomic.StoreUint32(&tickCount, t)
}
