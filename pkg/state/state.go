// Package state implements the three-tier session state model. Keys are
// partitioned by name prefix into app-scoped, user-scoped, and
// session-scoped storage; temp-prefixed keys are scratch data that never
// persist.
package state

import "strings"

const (
	AppPrefix  = "app:"
	UserPrefix = "user:"
	TempPrefix = "temp:"
)

// Split partitions a flat state mapping by key prefix. App- and
// user-prefixed keys are returned with their prefix stripped;
// temp-prefixed keys are dropped; everything else lands in the session
// partition unchanged.
func Split(flat map[string]any) (app, user, session map[string]any) {
	app = map[string]any{}
	user = map[string]any{}
	session = map[string]any{}
	for k, v := range flat {
		switch {
		case strings.HasPrefix(k, AppPrefix):
			app[strings.TrimPrefix(k, AppPrefix)] = v
		case strings.HasPrefix(k, UserPrefix):
			user[strings.TrimPrefix(k, UserPrefix)] = v
		case strings.HasPrefix(k, TempPrefix):
			// write-only scratch keys, never persisted
		default:
			session[k] = v
		}
	}
	return app, user, session
}

// Merge re-attaches the app and user prefixes and overlays both
// partitions on a copy of the session partition. The prefixes guarantee
// the three key sets are disjoint, so no overlay can clobber a session
// key.
func Merge(app, user, session map[string]any) map[string]any {
	merged := make(map[string]any, len(session)+len(app)+len(user))
	for k, v := range session {
		merged[k] = v
	}
	for k, v := range app {
		merged[AppPrefix+k] = v
	}
	for k, v := range user {
		merged[UserPrefix+k] = v
	}
	return merged
}
