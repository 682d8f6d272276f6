package butterfly

// Stats is read-only parse telemetry, supplementing the spec with a
// baseline-hit counter (a single total across all classes; SPEC_FULL.md
// SUPPLEMENTED FEATURES item 2): no behavior depends on these counts, they
// only report what happened.
type Stats struct {
	// BaselineHits counts entity creations that found and applied an
	// instancebaseline entry for their class, versus a zero-initialized
	// create.
	BaselineHits int64
	// PacketsParsed counts outer packets successfully dispatched.
	PacketsParsed int64
	// EntitiesCreated, EntitiesDeleted count C7 lifecycle events.
	EntitiesCreated int64
	EntitiesDeleted int64
}
