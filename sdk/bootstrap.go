package sdk

import (
	"sync"
)

// SDK bundles the Invoker and API built from one CommandContext. Hosts that
// prefer explicit wiring construct it with New and pass it around; the global
// accessors below are a convenience on top of the same type.
type SDK struct {
	Invoker *Invoker
	API     *API

	cc *CommandContext
}

// New validates cc and builds an Invoker and an API sharing it.
// A nil opts uses DefaultInvokerOptions.
func New(cc CommandContext, opts *InvokerOptions) (*SDK, error) {
	if err := cc.Validate(); err != nil {
		return nil, err
	}
	shared := &cc
	return &SDK{
		Invoker: NewInvoker(shared, opts),
		API:     NewAPI(NewReceiver(shared)),
		cc:      shared,
	}, nil
}

// Context returns a copy of the CommandContext the SDK was built from
func (s *SDK) Context() CommandContext {
	return *s.cc
}

var (
	globalMu  sync.RWMutex
	globalSDK *SDK
)

// Init builds an SDK and installs it as the process-wide instance returned by
// GetInvoker and GetAPI. Calling Init again replaces the instance; concurrent
// calls are serialized and the last one wins.
//
// Example:
//
//	if _, err := sdk.Init(cc, nil); err != nil {
//	    log.Fatal(err)
//	}
//	invoker, _ := sdk.GetInvoker()
func Init(cc CommandContext, opts *InvokerOptions) (*SDK, error) {
	s, err := New(cc, opts)
	if err != nil {
		return nil, err
	}
	globalMu.Lock()
	globalSDK = s
	globalMu.Unlock()
	return s, nil
}

// GetInvoker returns the Invoker installed by Init, or an *SDKError with code
// CodeNotInitialized if Init has not been called.
func GetInvoker() (*Invoker, error) {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalSDK == nil {
		return nil, NewSDKError(CodeNotInitialized, ErrNotInitialized.Message, nil)
	}
	return globalSDK.Invoker, nil
}

// GetAPI returns the API installed by Init, or an *SDKError with code
// CodeNotInitialized if Init has not been called.
func GetAPI() (*API, error) {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalSDK == nil {
		return nil, NewSDKError(CodeNotInitialized, ErrNotInitialized.Message, nil)
	}
	return globalSDK.API, nil
}
