package tracker

import (
	"gonum.org/v1/gonum/stat"

	"parkit-backend/internal/model"
	"parkit-backend/internal/pricing"
)

// LotStats extends the raw counts with the shares shown on the manager dashboard.
type LotStats struct {
	model.ParkingStats
	Utilization   float64 `json:"utilization"`
	Availability  float64 `json:"availability"`
	ReservedShare float64 `json:"reservedShare"`
	SurgeActive   bool    `json:"surgeActive"`
}

// Stats aggregates the current spot list. An empty lot reports zero rates.
func (s *Service) Stats() LotStats {
	return computeStats(s.Spots())
}

func computeStats(spots []model.ParkingSpot) LotStats {
	var st LotStats
	st.Total = len(spots)
	if st.Total == 0 {
		return st
	}
	prices := make([]float64, 0, len(spots))
	for _, sp := range spots {
		switch sp.Status {
		case model.SpotFree:
			st.Free++
		case model.SpotOccupied:
			st.Occupied++
		case model.SpotReserved:
			st.Reserved++
		}
		prices = append(prices, sp.Price)
	}
	total := float64(st.Total)
	st.OccupancyRate = float64(st.Occupied+st.Reserved) / total
	st.AveragePrice = stat.Mean(prices, nil)
	st.Utilization = float64(st.Occupied) / total
	st.Availability = float64(st.Free) / total
	st.ReservedShare = float64(st.Reserved) / total
	st.SurgeActive = st.OccupancyRate > pricing.HighDemandThreshold
	return st
}
