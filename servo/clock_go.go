//go:build !tinygo

package servo

func getTicks() uint32 {
	return tickCount
}

func setTicks(t uint32) {
	tickCount = t
}
