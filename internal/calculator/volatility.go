package calculator

import (
	"errors"
	"math"
)

// CalculateReturns converts a price window into simple period returns.
func CalculateReturns(prices []float64) ([]float64, error) {
	if len(prices) < 2 {
		return nil, errors.New("need at least two prices for returns")
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			return nil, errors.New("zero price in window")
		}
		returns = append(returns, (prices[i]-prices[i-1])/prices[i-1])
	}
	return returns, nil
}

// CalculateVolatility returns the population standard deviation of returns,
// expressed as a percentage.
func CalculateVolatility(prices []float64) (float64, error) {
	returns, err := CalculateReturns(prices)
	if err != nil {
		return 0, err
	}
	mean, _ := CalculateMean(returns)
	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	return math.Sqrt(variance) * 100, nil
}
