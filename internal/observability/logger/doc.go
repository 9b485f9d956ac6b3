// Package logger expone un logger zap singleton con scoping por contexto.
//
// Inicialización (una vez en main):
//
//	logger.Init(logger.Config{Env: cfg.Log.Env, Level: cfg.Log.Level, ServiceName: "cardsvc"})
//	defer logger.Sync()
//
// En handlers y servicios:
//
//	log := logger.From(ctx)
//	log.Info("card_published", logger.Identity(id), logger.CardID(cardID))
package logger
