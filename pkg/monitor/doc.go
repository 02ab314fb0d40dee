/*
Package monitor records song detections on broadcast channels and maintains
the song and channel catalogue.

A detection arrives either as a raw provider payload (RecordFromProvider) or
as an excerpt the service identifies itself through AcoustID and AudD
(Identify). Both paths extract the ISRC, normalize and validate it, resolve
or create the song, and store the detection in canonical form:

	res, err := svc.RecordFromProvider(ctx, monitor.RecordRequest{
		ChannelID: "c-rfm",
		Source:    monitor.SourceAudD,
		AudD:      payload,
	})

Repeats of the same ISRC on the same channel within Config.DedupWindow extend
the earlier detection's play time and report Merged.

Validation failures are classified as auth.KindValidation so handlers answer
400; store sentinels from package storage pass through unchanged.
*/
package monitor
