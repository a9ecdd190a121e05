// Package auth authenticates admin API requests with static API keys.
//
// Keys are presented as "Authorization: Bearer <key>" or in the X-API-Key
// header:
//
//	validator, err := auth.NewValidator([]auth.APIKey{{Name: "deploy", Key: key}})
//	if err != nil {
//		return err
//	}
//	mw := auth.NewMiddleware(validator, logger, nil)
//	mux.Handle("/api/", mw.Handle(api))
//
// Handlers behind the middleware can read the matched key name with
// KeyName for audit logging.
package auth
