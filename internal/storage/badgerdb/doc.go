// Package badgerdb provides durable storage for tokgate on Badger v3.
//
// Records are JSON values under typed key prefixes, with secondary index
// keys that map a token hash, client id, app id or email back to the
// primary id:
//
//	s/<session id>                 session record
//	sr/<refresh hash>              -> session id
//	sa/<access hash>               -> session id
//	su/<user id>/<session id>      user index (empty value)
//	d/<developer id>               developer record
//	dk/<api key hash>              -> developer id
//	dc/<client id>                 -> developer id
//	da/<app id>                    -> developer id
//	u/<user id>                    user record
//	ue/<email>                     -> user id
//
// Session transitions run in optimistic transactions with conflict
// detection; a conflicting commit is retried a bounded number of times, and
// the retry re-reads the state it depends on.
package badgerdb
