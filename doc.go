// Package ember is a RAM-first embedded vector database. Hot collections
// serve searches from in-memory indexes; idle collections are snapshotted to
// local disk and then to object storage, and come back to memory on demand.
//
// A minimal session:
//
//	db, err := ember.New()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	col, err := db.CreateCollection(ctx, "articles", 128)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	doc := model.NewVectorDocument(embedding)
//	if err := col.Insert(ctx, doc); err != nil {
//		log.Fatal(err)
//	}
//
//	results, err := col.Search(ctx, query, 10)
package ember
