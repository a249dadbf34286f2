package retail

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shelfbase/catalog-harvester/internal/catalog"
)

// wireNode mirrors one node of the taxonomy reply.
type wireNode struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Children []wireNode `json:"children"`
}

type taxonomyReply struct {
	Taxonomy []wireNode `json:"taxonomy"`
}

type listingReply struct {
	ProductIDs    []string `json:"productIds"`
	NextPageToken string   `json:"nextPageToken"`
}

type batchRequest struct {
	ProductIDs []string `json:"productIds"`
	Attributes []string `json:"attributes,omitempty"`
}

type wireUnitPrice struct {
	Price       float64 `json:"price"`
	PerQuantity string  `json:"perQuantity"`
}

type wireProduct struct {
	ProductID         string         `json:"productId"`
	RetailerProductID string         `json:"retailerProductId"`
	Name              string         `json:"name"`
	Brand             string         `json:"brand"`
	Price             float64        `json:"price"`
	UnitPrice         *wireUnitPrice `json:"unitPrice"`
	Size              string         `json:"size"`
	Description       string         `json:"description"`
	ImageURL          string         `json:"imageUrl"`
	CategoryPath      []string       `json:"categoryPath"`
	Alcohol           *bool          `json:"alcohol"`
}

type batchReply struct {
	Products []wireProduct `json:"products"`
	NotFound []string      `json:"notFound"`
}

func (n wireNode) toNode() catalog.TaxonomyNode {
	node := catalog.TaxonomyNode{ID: n.ID, Name: n.Name}
	for _, child := range n.Children {
		node.Children = append(node.Children, child.toNode())
	}
	return node
}

func (p wireProduct) toRecord() catalog.ProductRecord {
	rec := catalog.ProductRecord{
		Identifier:        catalog.ProductIdentifier(p.ProductID),
		RetailerProductID: p.RetailerProductID,
		Title:             p.Name,
		Brand:             p.Brand,
		Price:             p.Price,
		Size:              p.Size,
		Description:       p.Description,
		ImageURL:          p.ImageURL,
		CategoryPath:      p.CategoryPath,
		Alcohol:           p.Alcohol,
	}
	if p.UnitPrice != nil {
		rec.UnitPrice = &catalog.UnitPrice{
			Price:       p.UnitPrice.Price,
			PerQuantity: p.UnitPrice.PerQuantity,
		}
	}
	return rec
}

// FetchTaxonomy retrieves the category tree for the market. depth
// bounds how far the storefront expands the tree; zero asks for the
// storefront default.
func (c *Client) FetchTaxonomy(ctx context.Context, depth int) ([]catalog.TaxonomyNode, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req := c.http.R().SetContext(ctx).SetResult(&taxonomyReply{})
	if depth > 0 {
		req.SetQueryParam("depth", strconv.Itoa(depth))
	}
	resp, err := req.Get(c.apiPath("taxonomy"))
	if err != nil {
		return nil, fmt.Errorf("fetching taxonomy: %w", err)
	}
	if resp.IsError() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Endpoint: "taxonomy"}
	}
	reply := resp.Result().(*taxonomyReply)
	nodes := make([]catalog.TaxonomyNode, 0, len(reply.Taxonomy))
	for _, n := range reply.Taxonomy {
		nodes = append(nodes, n.toNode())
	}
	return nodes, nil
}

// FetchCategoryPage retrieves one page of product identifiers for a
// category. An empty cursor asks for the first page.
func (c *Client) FetchCategoryPage(ctx context.Context, categoryID, cursor string, size int) (catalog.ListingPage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return catalog.ListingPage{}, err
	}
	req := c.http.R().
		SetContext(ctx).
		SetResult(&listingReply{}).
		SetQueryParam("size", strconv.Itoa(size))
	if cursor != "" {
		req.SetQueryParam("pageToken", cursor)
	}
	resp, err := req.Get(c.apiPath(fmt.Sprintf("categories/%s/products", categoryID)))
	if err != nil {
		return catalog.ListingPage{}, fmt.Errorf("fetching category page: %w", err)
	}
	if resp.IsError() {
		return catalog.ListingPage{}, &APIError{StatusCode: resp.StatusCode(), Endpoint: "category products"}
	}
	reply := resp.Result().(*listingReply)
	page := catalog.ListingPage{NextCursor: reply.NextPageToken}
	for _, id := range reply.ProductIDs {
		page.Identifiers = append(page.Identifiers, catalog.ProductIdentifier(id))
	}
	return page, nil
}

// FetchProductBatch resolves a batch of identifiers to full records.
// Identifiers the storefront reports as unknown come back in the
// reply's NotFound list; identifiers it silently omits do not appear
// in either list and are the caller's to reconcile.
func (c *Client) FetchProductBatch(ctx context.Context, ids []catalog.ProductIdentifier) (catalog.BatchReply, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return catalog.BatchReply{}, err
	}
	body := batchRequest{Attributes: c.attributes}
	for _, id := range ids {
		body.ProductIDs = append(body.ProductIDs, string(id))
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&batchReply{}).
		Post(c.apiPath("products:batchGet"))
	if err != nil {
		return catalog.BatchReply{}, fmt.Errorf("fetching product batch: %w", err)
	}
	if resp.IsError() {
		return catalog.BatchReply{}, &APIError{StatusCode: resp.StatusCode(), Endpoint: "products batch"}
	}
	reply := resp.Result().(*batchReply)
	out := catalog.BatchReply{Found: make(map[catalog.ProductIdentifier]catalog.ProductRecord, len(reply.Products))}
	for _, p := range reply.Products {
		out.Found[catalog.ProductIdentifier(p.ProductID)] = p.toRecord()
	}
	for _, id := range reply.NotFound {
		out.NotFound = append(out.NotFound, catalog.ProductIdentifier(id))
	}
	return out, nil
}
