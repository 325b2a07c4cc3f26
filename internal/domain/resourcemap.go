package domain

// ResourceMap is the immutable, per-invocation snapshot mapping
// symbolic output names to opaque identifier strings (queue URLs,
// invoke endpoints). It is loaded once at entry (spec.md §4.5.1) and
// never mutated for the life of an invocation.
type ResourceMap map[string]string

// Lookup returns the opaque identifier for name, or ok=false if the
// resource map has no entry for it.
func (m ResourceMap) Lookup(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

// Well-known ResourceMap key builders. The switchover controller writes
// entries under these keys when it publishes the map; every other
// component only ever reads them.
func InputQueueKey(component string) string   { return "queue:input:" + component }
func LedgerQueueKey(component string) string  { return "queue:ledger:" + component }
func InvokeEndpointKey(component string) string { return "invoke:" + component }

// WellKnownObjectKey builds the object-store key layout spec.md §6
// describes: <s3KeyPrefix>/<name>/<deployId>/<file>.
func WellKnownObjectKey(prefix, appName, deployID, file string) string {
	return prefix + "/" + appName + "/" + deployID + "/" + file
}

const (
	ResourceMapObjectName      = "arnMap.json"
	AdvisoryConfigObjectName   = "config.js"
	ConfirmationObjectName     = "confirm.txt"
)
