package subheader

import "github.com/modelmeta/hf-crawler/internal/model"

// Segment resolves every listing's subheader into absolute counts.
func Segment(listings []model.Listing) []model.SegmentedLink {
	links := make([]model.SegmentedLink, 0, len(listings))
	for _, listing := range listings {
		downloads, likes := Parse(listing.RawSubheader, listing.HasDownloads, listing.HasLikes)
		links = append(links, model.SegmentedLink{
			URL:       listing.URL,
			Downloads: downloads,
			Likes:     likes,
		})
	}
	return links
}
