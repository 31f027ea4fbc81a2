package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kosarica/catalog-service/internal/database"
)

// searchProductsV2Request binds GET /v2/products/search's query parameters.
type searchProductsV2Request struct {
	Q        string `form:"q"`
	Limit    int    `form:"limit"`
	Offset   int    `form:"offset"`
	SortBy   string `form:"sort_by"`
	Category string `form:"category"`
	Brand    string `form:"brand"`
}

// SearchProductsV2 is the lexical half of the catalog search surface the
// chat tool search_products_v2 also calls into via database.SearchGProducts
// — this endpoint skips the value-metric reranking since it has no
// store_ids to price against.
// GET /v2/products/search?q&limit&offset&sort_by&category&brand
func SearchProductsV2(c *gin.Context) {
	var req searchProductsV2Request
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	if req.Limit <= 0 {
		req.Limit = 20
	}

	var category, brand *string
	if req.Category != "" {
		category = &req.Category
	}
	if req.Brand != "" {
		brand = &req.Brand
	}

	products, err := database.SearchGProducts(c.Request.Context(), req.Q, category, brand, req.Limit+req.Offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search products: " + err.Error()})
		return
	}

	if req.Offset > len(products) {
		req.Offset = len(products)
	}
	end := req.Offset + req.Limit
	if end > len(products) {
		end = len(products)
	}

	c.JSON(http.StatusOK, gin.H{"products": products[req.Offset:end], "total": len(products)})
}

// GetProductV2 returns one golden product's canonical record and best offer.
// GET /v2/products/:id
func GetProductV2(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "id must be numeric"})
		return
	}

	product, err := database.GetGProductByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
		return
	}

	resp := gin.H{"product": product}
	if bo, err := database.GetBestOffer(c.Request.Context(), id); err == nil {
		resp["best_offer"] = bo
	}
	c.JSON(http.StatusOK, resp)
}

// GetProductPricesByLocationV2 returns lowest-first prices for a product at
// a set of stores.
// GET /v2/products/:id/prices-by-location?store_ids=1,2,3
func GetProductPricesByLocationV2(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "id must be numeric"})
		return
	}

	var storeIDs []int64
	if raw := c.Query("store_ids"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			sid, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "store_ids must be a comma-separated list of integers"})
				return
			}
			storeIDs = append(storeIDs, sid)
		}
	}

	prices, err := database.GPricesForProductAtStores(c.Request.Context(), id, storeIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get prices by location: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"prices": prices})
}

// nearbyStoresV2Request binds GET /v2/stores/nearby's query parameters.
type nearbyStoresV2Request struct {
	Lat          float64 `form:"lat" binding:"required"`
	Lon          float64 `form:"lon" binding:"required"`
	RadiusMeters float64 `form:"radius_meters" binding:"required"`
	ChainCode    string  `form:"chain_code"`
}

// GetNearbyStoresV2 returns stores within a radius of a point.
// GET /v2/stores/nearby?lat&lon&radius_meters&chain_code?
func GetNearbyStoresV2(c *gin.Context) {
	var req nearbyStoresV2Request
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	var chainCode *string
	if req.ChainCode != "" {
		chainCode = &req.ChainCode
	}

	stores, err := database.NearbyStoresWithChain(c.Request.Context(), req.Lat, req.Lon, req.RadiusMeters, chainCode)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "find nearby stores: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stores": stores})
}

// RegisterProductsV2Routes mounts the /v2/products and /v2/stores groups.
func RegisterProductsV2Routes(r *gin.RouterGroup) {
	products := r.Group("/products")
	{
		products.GET("/search", SearchProductsV2)
		products.GET("/:id", GetProductV2)
		products.GET("/:id/prices-by-location", GetProductPricesByLocationV2)
	}

	stores := r.Group("/stores")
	{
		stores.GET("/nearby", GetNearbyStoresV2)
	}
}
