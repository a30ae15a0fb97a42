package billing

import (
	"context"

	"go.uber.org/zap"
)

// ActivityProvider hands out the host application's current UI context
// handle. The host owns the handle's lifecycle; it is fetched fresh for
// every purchase flow launch.
type ActivityProvider func() Activity

type InitializeResponse struct {
	Ready bool `json:"ready"`
}

type GetProductsRequest struct {
	ProductIDs []string `json:"productIds"`
}

type GetProductsResponse struct {
	Products []Product `json:"products"`
}

type PurchaseRequest struct {
	ProductID string `json:"productId"`
}

type PurchaseResponse struct {
	Transaction *Transaction `json:"transaction"`
}

type RestorePurchasesResponse struct {
	Products []OwnedPurchase `json:"products"`
}

// Server is the caller-facing surface of the gateway. Each method takes a
// structured request and returns either its payload or an error; the
// transport that carries requests and responses is the host's concern.
type Server struct {
	log         *zap.Logger
	conn        *Connection
	catalog     CatalogQuerier
	coordinator *Coordinator
	restorer    *Restorer
	activity    ActivityProvider
}

func NewServer(
	log *zap.Logger,
	conn *Connection,
	catalog CatalogQuerier,
	coordinator *Coordinator,
	restorer *Restorer,
	activity ActivityProvider,
) *Server {
	return &Server{
		log:         log,
		conn:        conn,
		catalog:     catalog,
		coordinator: coordinator,
		restorer:    restorer,
		activity:    activity,
	}
}

// Initialize reports whether the billing session is ready. It never fails;
// callers poll it after startup.
func (s *Server) Initialize(ctx context.Context) (*InitializeResponse, error) {
	return &InitializeResponse{Ready: s.conn.Ready()}, nil
}

func (s *Server) GetProducts(ctx context.Context, req *GetProductsRequest) (*GetProductsResponse, error) {
	products, err := s.catalog.QueryProducts(ctx, req.ProductIDs)
	if err != nil {
		return nil, err
	}
	return &GetProductsResponse{Products: products}, nil
}

func (s *Server) Purchase(ctx context.Context, req *PurchaseRequest) (*PurchaseResponse, error) {
	log := s.log.With(zap.String("product_id", req.ProductID))

	txn, err := s.coordinator.Purchase(ctx, s.activity(), req.ProductID)
	if err != nil {
		log.Debug("purchase rejected", zap.Error(err))
		return nil, err
	}

	log.Debug("purchase completed", zap.String("transaction_id", txn.TransactionID))
	return &PurchaseResponse{Transaction: txn}, nil
}

func (s *Server) RestorePurchases(ctx context.Context) (*RestorePurchasesResponse, error) {
	owned, err := s.restorer.Restore(ctx)
	if err != nil {
		return nil, err
	}
	return &RestorePurchasesResponse{Products: owned}, nil
}
