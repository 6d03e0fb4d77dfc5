package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/localcart/api/responses"
	"github.com/angelmondragon/localcart/pkg/logger"
	"github.com/angelmondragon/localcart/pkg/marketplace"
)

// InsightsService is the cached insight lookup surface.
type InsightsService interface {
	SellerDemand(ctx context.Context, sellerID string) (marketplace.SellerDemand, error)
	PriceCoach(ctx context.Context, productID string) (marketplace.PriceCoach, error)
	RecommendedListings(ctx context.Context, productID string) ([]marketplace.RecommendedListing, error)
	Invalidate()
}

type priceCoachResponse struct {
	ProductID string        `json:"product_id"`
	Suggested moneyResponse `json:"suggested"`
	Low       moneyResponse `json:"low"`
	High      moneyResponse `json:"high"`
}

type recommendedListingResponse struct {
	ListingID    string        `json:"listing_id"`
	Title        string        `json:"title"`
	Price        moneyResponse `json:"price"`
	ThumbnailURL *string       `json:"thumbnail_url,omitempty"`
}

func InsightsSellerDemand(svc InsightsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		demand, err := svc.SellerDemand(r.Context(), chi.URLParam(r, "sellerId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, demand)
	}
}

func InsightsPriceCoach(svc InsightsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		coach, err := svc.PriceCoach(r.Context(), chi.URLParam(r, "productId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, priceCoachResponse{
			ProductID: coach.ProductID,
			Suggested: newMoney(coach.SuggestedMinorUnits, coach.Currency),
			Low:       newMoney(coach.LowMinorUnits, coach.Currency),
			High:      newMoney(coach.HighMinorUnits, coach.Currency),
		})
	}
}

func InsightsRecommendations(svc InsightsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		listings, err := svc.RecommendedListings(r.Context(), chi.URLParam(r, "productId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]recommendedListingResponse, 0, len(listings))
		for _, l := range listings {
			out = append(out, recommendedListingResponse{
				ListingID:    l.ListingID,
				Title:        l.Title,
				Price:        newMoney(l.PriceMinorUnits, l.Currency),
				ThumbnailURL: l.ThumbnailURL,
			})
		}
		responses.WriteSuccess(w, out)
	}
}

// InsightsInvalidate drops every cached insight so the next lookup goes to
// the marketplace.
func InsightsInvalidate(svc InsightsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc.Invalidate()
		logg.Info(r.Context(), "insight caches invalidated")
		w.WriteHeader(http.StatusNoContent)
	}
}
