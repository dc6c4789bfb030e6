// Package logger provee un logger Zap de proceso con scoping por contexto.
//
// # Design Decisions
//
//   - Singleton: una sola instancia inicializada con Init() desde cmd/.
//   - Context Scoping: cada flujo (sign-in, reauth, borrado) puede llevar su
//     propio logger con campos (flow, uid, link_id) sin crear un core nuevo.
//   - Environments: "dev" usa consola con colores, "prod" usa JSON, "test" es mudo.
//   - Emails: nunca se loguean en claro, usar Email() que los enmascara.
//
// # Usage
//
//	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level})
//	defer logger.Sync()
//
//	log := logger.From(ctx).With(logger.Component("signin"), logger.Op("RequestEmailLink"))
//	log.Info("link sent", logger.Email(addr), logger.LinkID(id))
package logger
