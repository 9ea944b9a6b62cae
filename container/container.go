package container

import (
	core "taskmarket-backend/core/marketplace"
	"taskmarket-backend/handlers"
	"taskmarket-backend/services"
	"taskmarket-backend/token"
)

// Container holds all application dependencies
type Container struct {
	// Services
	FundingService *services.FundingService
	HealthService  *services.HealthService

	// Handlers
	HealthHandler     *handlers.HealthHandler
	TaskHandler       *handlers.TaskHandler
	BidHandler        *handlers.BidHandler
	EscrowHandler     *handlers.EscrowHandler
	ReputationHandler *handlers.ReputationHandler
	TokenHandler      *handlers.TokenHandler
}

// NewContainer wires services and handlers around the engine.
func NewContainer(engine *core.Engine, vault *token.Vault, allowDevMint bool) *Container {
	// Initialize services
	fundingService := services.NewFundingService(engine)
	healthService := services.NewHealthService()

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(healthService)
	taskHandler := handlers.NewTaskHandler(engine)
	bidHandler := handlers.NewBidHandler(engine)
	escrowHandler := handlers.NewEscrowHandler(engine, fundingService)
	reputationHandler := handlers.NewReputationHandler(engine)
	tokenHandler := handlers.NewTokenHandler(vault, allowDevMint)

	return &Container{
		FundingService: fundingService,
		HealthService:  healthService,

		HealthHandler:     healthHandler,
		TaskHandler:       taskHandler,
		BidHandler:        bidHandler,
		EscrowHandler:     escrowHandler,
		ReputationHandler: reputationHandler,
		TokenHandler:      tokenHandler,
	}
}
