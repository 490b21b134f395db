package metrics

import "github.com/chalabi2/blockchain-exporter/internal/rpcerrors"

// RPCObserver feeds rpc_call_duration_seconds/rpc_error_total from an
// rpcclient.Client. ChainIDLabel is read lazily so a client dialed before
// the chain id is resolved still reports under the label in effect at the
// time of each call.
type RPCObserver struct {
	Registry     *Registry
	Blockchain   string
	ChainIDLabel func() string
}

// NewRPCObserver builds an Observer bound to one chain.
func NewRPCObserver(reg *Registry, blockchain string, chainIDLabel func() string) *RPCObserver {
	return &RPCObserver{Registry: reg, Blockchain: blockchain, ChainIDLabel: chainIDLabel}
}

func (o *RPCObserver) label() string {
	if o.ChainIDLabel == nil {
		return "unknown"
	}
	if v := o.ChainIDLabel(); v != "" {
		return v
	}
	return "unknown"
}

// ObserveDuration records a successful call's end-to-end duration.
func (o *RPCObserver) ObserveDuration(operation string, seconds float64) {
	o.Registry.RPCCallDuration.WithLabelValues(o.Blockchain, o.label(), operation).Observe(seconds)
}

// ObserveError increments the error counter for a failed call.
func (o *RPCObserver) ObserveError(operation string, kind rpcerrors.Kind) {
	o.Registry.RPCErrorTotal.WithLabelValues(o.Blockchain, o.label(), operation, string(kind)).Inc()
}
