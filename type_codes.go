package fissile

import (
	"reflect"
	"sync"
)

var lock sync.Mutex
var signatures = make(map[reflect.Type]*signature)
var rejections = make(map[reflect.Type]string)

// getSignature maps function types to their characterization.  Results,
// including rejections, are remembered since the same implementation
// type is usually registered by more than one service.
func getSignature(t reflect.Type) (*signature, string) {
	lock.Lock()
	defer lock.Unlock()
	if sig, found := signatures[t]; found {
		return sig, ""
	}
	if mismatch, found := rejections[t]; found {
		return nil, mismatch
	}
	sig, mismatch := characterize(t)
	if mismatch != "" {
		rejections[t] = mismatch
		return nil, mismatch
	}
	signatures[t] = sig
	return sig, ""
}
