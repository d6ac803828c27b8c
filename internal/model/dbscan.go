package model

import (
	"math"
)

// DBSCAN is a density clustering model used for device-relationship
// detection: points within Eps of each other (with at least MinPts
// neighbors) form clusters, sparse points stay unclustered noise.
//
// The fitted model keeps its training points so a new point can be assigned
// by nearest-clustered-point distance: when that distance exceeds Eps the
// point is reported unclustered.
type DBSCAN struct {
	Eps         float64     `json:"eps"`
	MinPts      int         `json:"minPts"`
	Points      [][]float64 `json:"points"`
	Labels      []int       `json:"labels"` // -1 = noise
	NumClusters int         `json:"numClusters"`
}

const (
	dbscanEps    = 0.9
	dbscanMinPts = 3
)

// Noise is the label of unclustered points.
const Noise = -1

// fitDBSCAN clusters a scaled sample matrix with the standard region-query
// expansion.
func fitDBSCAN(X [][]float64) *DBSCAN {
	d := &DBSCAN{
		Eps:    dbscanEps,
		MinPts: dbscanMinPts,
		Points: X,
		Labels: make([]int, len(X)),
	}
	for i := range d.Labels {
		d.Labels[i] = Noise
	}

	visited := make([]bool, len(X))
	cluster := 0

	for i := range X {
		if visited[i] {
			continue
		}
		visited[i] = true

		neighbors := d.regionQuery(i)
		if len(neighbors) < d.MinPts {
			continue // stays noise unless claimed by a later expansion
		}

		d.Labels[i] = cluster
		// Expand the cluster breadth-first.
		queue := neighbors
		for len(queue) > 0 {
			j := queue[0]
			queue = queue[1:]

			if !visited[j] {
				visited[j] = true
				jn := d.regionQuery(j)
				if len(jn) >= d.MinPts {
					queue = append(queue, jn...)
				}
			}
			if d.Labels[j] == Noise {
				d.Labels[j] = cluster
			}
		}
		cluster++
	}

	d.NumClusters = cluster
	return d
}

func (d *DBSCAN) regionQuery(i int) []int {
	var out []int
	for j := range d.Points {
		if j != i && euclidean(d.Points[i], d.Points[j]) <= d.Eps {
			out = append(out, j)
		}
	}
	return out
}

// Query assigns a scaled vector to the cluster of its nearest clustered
// training point. It returns (Noise, distance) when the nearest clustered
// point is farther than Eps.
func (d *DBSCAN) Query(v []float64) (cluster int, distance float64) {
	cluster = Noise
	distance = math.Inf(1)

	for i, p := range d.Points {
		if d.Labels[i] == Noise {
			continue
		}
		if dist := euclidean(v, p); dist < distance {
			distance = dist
			cluster = d.Labels[i]
		}
	}

	if math.IsInf(distance, 1) {
		// Training produced no clusters at all.
		return Noise, 0
	}
	if distance > d.Eps {
		return Noise, distance
	}
	return cluster, distance
}

func euclidean(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
